package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fundsim/fund-backtester/src/backtest-api/models"
	"github.com/fundsim/fund-backtester/src/eventmodels"
)

// MockProducer emits a fixed direction and confidence for every call. Delay,
// Err and FailFirst steer timeout and retry behavior in tests.
type MockProducer struct {
	ProducerID string
	Direction  models.SignalDirection
	Confidence float64
	Err        error
	Delay      time.Duration
	FailFirst  int

	mutex sync.Mutex
	calls int
}

func NewMockProducer(id string, direction models.SignalDirection, confidence float64) *MockProducer {
	return &MockProducer{
		ProducerID: id,
		Direction:  direction,
		Confidence: confidence,
	}
}

func (p *MockProducer) ID() string {
	return p.ProducerID
}

func (p *MockProducer) Name() string {
	return fmt.Sprintf("Mock %s", p.ProducerID)
}

func (p *MockProducer) Calls() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.calls
}

func (p *MockProducer) ProduceSignal(ctx context.Context, ticker string, date time.Time, history []*eventmodels.PriceBar) (*models.Signal, error) {
	p.mutex.Lock()
	p.calls++
	call := p.calls
	p.mutex.Unlock()

	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.FailFirst > 0 && call <= p.FailFirst {
		return nil, fmt.Errorf("mock producer %s failed on call %d", p.ProducerID, call)
	}

	if p.Err != nil {
		return nil, p.Err
	}

	return models.NewSignal(p.ProducerID, ticker, p.Direction, p.Confidence, "mock signal"), nil
}
