package eventpubsub

const (
	BacktestCompletedEvent = "BacktestCompletedEvent"
	BacktestCancelledEvent = "BacktestCancelledEvent"
	BacktestFailedEvent    = "BacktestFailedEvent"
	Error                  = "DefaultError"
)
