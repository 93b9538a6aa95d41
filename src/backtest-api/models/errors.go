package models

import "fmt"

var (
	ErrNoPriceData          = fmt.Errorf("no price data available")
	ErrSessionNotFound      = fmt.Errorf("session not found")
	ErrSessionTerminal      = fmt.Errorf("session already in a terminal state")
	ErrInvalidTransition    = fmt.Errorf("invalid session status transition")
	ErrInsufficientCash     = fmt.Errorf("insufficient cash")
	ErrInvalidQuantityLong  = fmt.Errorf("invalid order quantity: cannot close more than long quantity")
	ErrInvalidQuantityShort = fmt.Errorf("invalid order quantity: cannot close more than short quantity")
	ErrInvalidQuantityZero  = fmt.Errorf("invalid order quantity: quantity must be positive")
	ErrLedgerViolation      = fmt.Errorf("ledger invariant violation")
	ErrUnknownProducer      = fmt.Errorf("unknown signal producer")
)
