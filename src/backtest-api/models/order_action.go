package models

import "fmt"

type OrderAction string

const (
	OrderActionBuy   OrderAction = "buy"
	OrderActionSell  OrderAction = "sell"
	OrderActionShort OrderAction = "short"
	OrderActionCover OrderAction = "cover"
	OrderActionHold  OrderAction = "hold"
)

func (a OrderAction) Validate() error {
	switch a {
	case OrderActionBuy, OrderActionSell, OrderActionShort, OrderActionCover, OrderActionHold:
		return nil
	default:
		return fmt.Errorf("invalid order action: %s", a)
	}
}

func (a OrderAction) IsOpening() bool {
	return a == OrderActionBuy || a == OrderActionShort
}

func (a OrderAction) IsClosing() bool {
	return a == OrderActionSell || a == OrderActionCover
}
