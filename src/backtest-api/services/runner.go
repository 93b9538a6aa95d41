package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
	"github.com/fundsim/fund-backtester/src/eventpubsub"
	"github.com/fundsim/fund-backtester/src/strategy"
	"github.com/fundsim/fund-backtester/src/utils"
	"github.com/fundsim/fund-backtester/src/worker"
)

var tracer = otel.Tracer("backtest-runner")

// EventSink receives every event a session emits, in emission order. The
// event store recorder implements it; a nil sink disables recording.
type EventSink interface {
	Record(ctx context.Context, event eventmodels.BacktestEvent) error
}

// Runner executes one backtest session from pending to a terminal state. All
// trading state lives on the runner's stack; the session handle only ever
// sees finished snapshots and status changes, so readers never observe a
// half-applied day.
type Runner struct {
	provider         models.BarProvider
	aggregator       *SignalAggregator
	riskManager      *RiskManager
	portfolioManager *PortfolioManager
	executor         *Executor
	performance      *PerformanceCalculator
	sink             EventSink

	maxPositionShare float64
	lookbackDays     int
}

func NewRunner(provider models.BarProvider, producers *strategy.ProducerRegistry, pool *worker.Pool, config *eventmodels.EngineConfigYAML) *Runner {
	return &Runner{
		provider:         provider,
		aggregator:       NewSignalAggregator(producers, pool, config),
		riskManager:      NewRiskManager(),
		portfolioManager: NewPortfolioManager(producers),
		executor:         NewExecutor(),
		performance:      NewPerformanceCalculator(),
		maxPositionShare: config.MaxPositionShare,
		lookbackDays:     config.LookbackDays,
	}
}

// SetEventSink attaches an optional recorder for emitted events.
func (r *Runner) SetEventSink(sink EventSink) {
	r.sink = sink
}

// Run drives the session's day loop. It always leaves the session in a
// terminal state and always closes the stream; a panic inside the loop fails
// the session instead of killing the process.
func (r *Runner) Run(ctx context.Context, handle *SessionHandle) {
	ctx, span := tracer.Start(ctx, "Runner.Run",
		trace.WithAttributes(attribute.String("session.id", handle.ID().String())))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("Runner.Run: session %s panicked: %v", handle.ID(), rec)
			r.fail(ctx, handle, fmt.Errorf("backtest panicked: %v", rec))
		}
	}()

	session := handle.Session()
	request := session.Request

	if handle.CancelRequested() || ctx.Err() != nil {
		r.cancel(handle, nil, nil, request.InitialCapital)
		return
	}

	if err := handle.Transition(models.SessionStatusRunning); err != nil {
		log.Errorf("Runner.Run: session %s: %v", handle.ID(), err)
		return
	}

	start, end, err := request.Dates()
	if err != nil {
		r.fail(ctx, handle, err)
		return
	}

	historyStart := start.AddDate(0, 0, -r.lookbackDays*2)
	if err := r.provider.PrefetchRange(ctx, request.Tickers, historyStart, end); err != nil {
		r.fail(ctx, handle, fmt.Errorf("prefetching price data: %w", err))
		return
	}

	tradingDates := r.tradingDates(request.Tickers, start, end)
	totalDays := len(tradingDates)

	r.emit(ctx, handle, eventmodels.NewBacktestStartEvent(handle.ID(), request.Tickers, totalDays))

	portfolio := models.NewPortfolio(request.InitialCapital)
	seed := models.NewDailySnapshot(start, portfolio, nil, 0)
	handle.AppendSnapshot(seed)
	running := NewRunningPerformance(request.InitialCapital, seed.TotalValue)

	limits := models.RiskLimits{
		MaxPositionShare:  r.maxPositionShare,
		MarginRequirement: request.MarginRequirement,
	}

	lastPrices := make(map[string]float64)
	var trades []*models.ExecutedTrade

	for i, date := range tradingDates {
		if handle.CancelRequested() || ctx.Err() != nil {
			r.cancel(handle, handle.Snapshots(), trades, request.InitialCapital)
			return
		}

		r.emit(ctx, handle, eventmodels.NewBacktestProgressEvent(handle.ID(), date, i+1, totalDays,
			fmt.Sprintf("processing %s", date.Format(utils.DateLayout))))

		tradable := r.loadPrices(ctx, handle, request.Tickers, date, lastPrices)
		if len(tradable) == 0 {
			handle.Advance(date, i+1, totalDays)
			continue
		}

		histories := r.loadHistories(ctx, tradable, date)
		signals, warnings := r.aggregator.CollectSignals(ctx, request.Producers, tradable, date, histories)
		for _, warning := range warnings {
			handle.AddWarning(warning)
		}

		caps := r.riskManager.Caps(portfolio, lastPrices, tradable, limits)
		orders := r.makeOrders(portfolio, tradable, signals, caps, lastPrices)

		dayTrades, err := r.executor.ApplyOrders(portfolio, orders, lastPrices, limits, date)
		if err != nil {
			r.fail(ctx, handle, fmt.Errorf("executing orders for %s: %w", date.Format(utils.DateLayout), err))
			return
		}

		for _, trade := range dayTrades {
			running.AddTrade(trade)
			r.emit(ctx, handle, eventmodels.NewTradingEvent(handle.ID(), trade.Date, trade.Ticker,
				string(trade.Action), trade.Quantity, trade.Price, trade.PortfolioValue))
		}
		trades = append(trades, dayTrades...)

		previous := handle.LastSnapshot()
		snapshot := models.NewDailySnapshot(date, portfolio, lastPrices, previous.TotalValue)
		handle.AppendSnapshot(snapshot)
		running.AddSnapshot(snapshot.TotalValue)

		r.emit(ctx, handle, eventmodels.NewPortfolioUpdateEvent(handle.ID(), date, snapshot.Cash,
			snapshot.TotalValue, snapshot.DailyReturn, positionDTOs(snapshot)))

		metrics := running.Metrics()
		r.emit(ctx, handle, eventmodels.NewPerformanceUpdateEvent(handle.ID(), metrics.TotalReturn,
			metrics.SharpeRatio, metrics.SortinoRatio, metrics.MaxDrawdown))

		handle.Advance(date, i+1, totalDays)
	}

	r.complete(ctx, handle, portfolio, trades, request.InitialCapital)
}

// tradingDates merges each ticker's available dates inside the window into one
// ordered weekday sequence. A date counts as a trading day if at least one
// requested ticker has a bar on it.
func (r *Runner) tradingDates(tickers []string, start, end time.Time) []time.Time {
	seen := make(map[string]time.Time)
	for _, ticker := range tickers {
		for _, date := range r.provider.TradingDates(ticker, start, end) {
			if utils.IsWeekend(date) {
				continue
			}
			seen[date.Format(utils.DateLayout)] = utils.NormalizeDate(date)
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for _, date := range seen {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// loadPrices fetches the day's closes, folding them into the carry-forward
// price map used for valuation. Tickers without a bar today are skipped with a
// warning and excluded from trading, but positions in them keep their last
// observed close for valuation.
func (r *Runner) loadPrices(ctx context.Context, handle *SessionHandle, tickers []string, date time.Time, lastPrices map[string]float64) []string {
	var tradable []string
	for _, ticker := range tickers {
		bar, err := r.provider.GetBar(ctx, ticker, date)
		if err != nil {
			if !errors.Is(err, models.ErrNoPriceData) {
				log.Warnf("Runner.loadPrices: %s on %s: %v", ticker, date.Format(utils.DateLayout), err)
			}
			handle.AddWarning(fmt.Sprintf("no price data for %s on %s", ticker, date.Format(utils.DateLayout)))
			continue
		}
		lastPrices[ticker] = bar.Close
		tradable = append(tradable, ticker)
	}
	sort.Strings(tradable)
	return tradable
}

// loadHistories returns each ticker's lookback window of bars strictly before
// the decision date.
func (r *Runner) loadHistories(ctx context.Context, tickers []string, date time.Time) map[string][]*eventmodels.PriceBar {
	histories := make(map[string][]*eventmodels.PriceBar, len(tickers))
	windowStart := date.AddDate(0, 0, -r.lookbackDays*2)
	dayBefore := date.AddDate(0, 0, -1)

	for _, ticker := range tickers {
		dates := r.provider.TradingDates(ticker, windowStart, dayBefore)
		if len(dates) > r.lookbackDays {
			dates = dates[len(dates)-r.lookbackDays:]
		}
		bars := make([]*eventmodels.PriceBar, 0, len(dates))
		for _, d := range dates {
			bar, err := r.provider.GetBar(ctx, ticker, d)
			if err != nil {
				continue
			}
			bars = append(bars, bar)
		}
		histories[ticker] = bars
	}
	return histories
}

// makeOrders forms one order per tradable ticker in sorted order, threading a
// cash budget through so the batch stays affordable when executed in the same
// order.
func (r *Runner) makeOrders(portfolio *models.Portfolio, tickers []string, signals map[string][]*models.Signal, caps map[string]models.PositionCap, prices map[string]float64) []*models.Order {
	orders := make([]*models.Order, 0, len(tickers))
	budget := portfolio.Cash

	for _, ticker := range tickers {
		order := r.portfolioManager.MakeOrder(ticker, signals[ticker], portfolio.GetPosition(ticker),
			caps[ticker], budget, prices[ticker])
		if order.IsHold() {
			continue
		}

		notional := order.Quantity * prices[ticker]
		switch order.Action {
		case models.OrderActionBuy, models.OrderActionCover:
			budget -= notional
		case models.OrderActionSell, models.OrderActionShort:
			budget += notional
		}

		orders = append(orders, order)
	}
	return orders
}

func (r *Runner) emit(ctx context.Context, handle *SessionHandle, event eventmodels.BacktestEvent) {
	if r.sink != nil {
		if err := r.sink.Record(ctx, event); err != nil {
			log.Warnf("Runner.emit: recording %s for %s: %v", event.GetType(), handle.ID(), err)
		}
	}
	handle.Stream().Publish(event)
}

func (r *Runner) complete(ctx context.Context, handle *SessionHandle, portfolio *models.Portfolio, trades []*models.ExecutedTrade, initialCapital float64) {
	snapshots := handle.Snapshots()
	metrics := r.performance.Recompute(snapshots, trades, initialCapital)

	if err := handle.Transition(models.SessionStatusCompleted); err != nil {
		log.Errorf("Runner.complete: session %s: %v", handle.ID(), err)
		return
	}

	result := &models.BacktestResult{
		Session:        handle.Session(),
		Metrics:        metrics,
		Snapshots:      snapshots,
		Trades:         trades,
		FinalPortfolio: portfolio.Copy(),
	}
	handle.SetResult(result)

	r.emit(ctx, handle, eventmodels.NewBacktestCompleteEvent(handle.ID(), performanceDTO(metrics), snapshotDTOs(snapshots)))
	handle.Stream().Close()

	log.Infof("Runner.complete: session %s finished, total return %.4f over %d trades", handle.ID(), metrics.TotalReturn, metrics.TotalTrades)
	eventpubsub.Publish(eventpubsub.BacktestCompletedEvent, result)
}

func (r *Runner) cancel(handle *SessionHandle, snapshots []*models.DailySnapshot, trades []*models.ExecutedTrade, initialCapital float64) {
	if err := handle.Transition(models.SessionStatusCancelled); err != nil {
		log.Errorf("Runner.cancel: session %s: %v", handle.ID(), err)
		return
	}

	result := &models.BacktestResult{
		Session:   handle.Session(),
		Metrics:   r.performance.Recompute(snapshots, trades, initialCapital),
		Snapshots: snapshots,
		Trades:    trades,
	}
	handle.SetResult(result)

	handle.Stream().Close()

	log.Infof("Runner.cancel: session %s cancelled after %d days", handle.ID(), result.Session.CompletedDays)
	eventpubsub.Publish(eventpubsub.BacktestCancelledEvent, result)
}

func (r *Runner) fail(ctx context.Context, handle *SessionHandle, cause error) {
	if handle.Session().Status.IsTerminal() {
		return
	}
	if err := handle.Fail(cause); err != nil {
		log.Errorf("Runner.fail: session %s: %v", handle.ID(), err)
		return
	}

	snapshots := handle.Snapshots()
	result := &models.BacktestResult{
		Session:   handle.Session(),
		Metrics:   r.performance.Recompute(snapshots, nil, handle.Session().Request.InitialCapital),
		Snapshots: snapshots,
	}
	handle.SetResult(result)

	r.emit(ctx, handle, eventmodels.NewBacktestErrorEvent(handle.ID(), cause.Error()))
	handle.Stream().Close()

	log.Errorf("Runner.fail: session %s failed: %v", handle.ID(), cause)
	eventpubsub.Publish(eventpubsub.BacktestFailedEvent, result)
}

func positionDTOs(snapshot *models.DailySnapshot) map[string]*eventmodels.PositionDTO {
	positions := make(map[string]*eventmodels.PositionDTO, len(snapshot.Positions))
	for ticker, position := range snapshot.Positions {
		positions[ticker] = &eventmodels.PositionDTO{
			LongQuantity:   position.LongQuantity,
			ShortQuantity:  position.ShortQuantity,
			LongCostBasis:  position.LongCostBasis,
			ShortCostBasis: position.ShortCostBasis,
		}
	}
	return positions
}

func snapshotDTOs(snapshots []*models.DailySnapshot) []*eventmodels.SnapshotDTO {
	dtos := make([]*eventmodels.SnapshotDTO, 0, len(snapshots))
	for _, snapshot := range snapshots {
		dtos = append(dtos, &eventmodels.SnapshotDTO{
			Date:        snapshot.Date.Format(utils.DateLayout),
			Cash:        snapshot.Cash,
			TotalValue:  snapshot.TotalValue,
			DailyReturn: snapshot.DailyReturn,
		})
	}
	return dtos
}

func performanceDTO(metrics *models.PerformanceMetrics) *eventmodels.PerformanceDTO {
	return &eventmodels.PerformanceDTO{
		TotalReturn:    metrics.TotalReturn,
		FinalValue:     metrics.FinalValue,
		InitialCapital: metrics.InitialCapital,
		SharpeRatio:    metrics.SharpeRatio,
		SortinoRatio:   metrics.SortinoRatio,
		MaxDrawdown:    metrics.MaxDrawdown,
	}
}
