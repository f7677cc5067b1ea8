package lob

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side represents trade direction (buy/sell)
type Side int

const (
	Buy Side = iota
	Sell
)

// String returns the lowercase side name.
func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// OrderKind enumerates the supported order kinds. The set is closed:
// NewOrder rejects anything outside it.
type OrderKind int

const (
	MarketBuy OrderKind = iota
	MarketSell
	LimitBuy
	LimitSell
	ModifyLimitBuy
	ModifyLimitSell
	NoOp
)

var orderKindNames = map[OrderKind]string{
	MarketBuy:       "market_buy",
	MarketSell:      "market_sell",
	LimitBuy:        "limit_buy",
	LimitSell:       "limit_sell",
	ModifyLimitBuy:  "modify_limit_buy",
	ModifyLimitSell: "modify_limit_sell",
	NoOp:            "no_op",
}

// String returns the wire-style kind name.
func (k OrderKind) String() string {
	if name, ok := orderKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("order_kind(%d)", int(k))
}

// Errors
var (
	ErrInvalidOrderKind     = fmt.Errorf("invalid order kind")
	ErrInvalidQuantity      = fmt.Errorf("quantity must not be negative")
	ErrModifyExceedsResting = fmt.Errorf("modify exceeds resting volume")
	ErrNoSuchStep           = fmt.Errorf("no such step")
)

// Order describes an intended action against the book. Market orders carry
// no meaningful price. Orders are values; the book never retains them.
type Order struct {
	Kind     OrderKind
	Price    decimal.Decimal
	Quantity decimal.Decimal
	TraderID string
}

// NewOrder validates the kind and quantity and builds an Order.
// Price/quantity sign checking beyond non-negative quantity is left to the
// caller, matching the engine's input contract.
func NewOrder(kind OrderKind, price, quantity decimal.Decimal, traderID string) (Order, error) {
	if _, ok := orderKindNames[kind]; !ok {
		return Order{}, fmt.Errorf("%w: %d", ErrInvalidOrderKind, int(kind))
	}
	if quantity.IsNegative() {
		return Order{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, quantity)
	}
	return Order{Kind: kind, Price: price, Quantity: quantity, TraderID: traderID}, nil
}

// NoOpOrder builds the do-nothing order for a trader. Submitting it still
// advances the book's step and every derived sequence.
func NoOpOrder(traderID string) Order {
	return Order{Kind: NoOp, TraderID: traderID}
}

// Trade is the immutable record of an executed match. Direction is the side
// of the incoming order; the resting fields identify the liquidity that was
// consumed.
type Trade struct {
	Price           decimal.Decimal
	Volume          decimal.Decimal
	Direction       Side
	RestingTrader   string
	IncomingTrader  string
	RestingOrderID  int
	IncomingOrderID int
}

// BookEntry is a resting limit order inside the book. Quantity is always
// positive; entries hitting zero are pruned immediately.
type BookEntry struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	OrderID  int
	TraderID string
}

// Level is an aggregated per-price view of one book side.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BookState is the aggregated snapshot of both sides at one step.
type BookState struct {
	Step int
	Asks []Level
	Bids []Level
}

// Depth counts distinct price levels per side.
type Depth struct {
	AskLevels int
	BidLevels int
}

// DepthVolume sums resting quantity per side.
type DepthVolume struct {
	AskVolume decimal.Decimal
	BidVolume decimal.Decimal
}
