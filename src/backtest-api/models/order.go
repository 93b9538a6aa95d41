package models

import "fmt"

// Order is the portfolio manager's decision for one ticker on one trading day.
type Order struct {
	Ticker    string      `json:"ticker"`
	Action    OrderAction `json:"action"`
	Quantity  float64     `json:"quantity"`
	Reasoning string      `json:"reasoning"`
}

func NewOrder(ticker string, action OrderAction, quantity float64, reasoning string) *Order {
	return &Order{
		Ticker:    ticker,
		Action:    action,
		Quantity:  quantity,
		Reasoning: reasoning,
	}
}

func NewHoldOrder(ticker string, reasoning string) *Order {
	return NewOrder(ticker, OrderActionHold, 0, reasoning)
}

func (o *Order) Validate() error {
	if err := o.Action.Validate(); err != nil {
		return err
	}

	if o.Quantity < 0 {
		return fmt.Errorf("invalid order quantity %.2f: must not be negative", o.Quantity)
	}

	if o.Action != OrderActionHold && o.Quantity == 0 {
		return ErrInvalidQuantityZero
	}

	return nil
}

func (o *Order) IsHold() bool {
	return o.Action == OrderActionHold || o.Quantity == 0
}
