package sim

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/marketsim/lob/pkg/lob"
)

// Point is one sample of a per-trader series.
type Point struct {
	Step  int
	Value decimal.Decimal
}

// ActiveOrder is one of a trader's resting entries, reconstructed from the
// book after each driver step.
type ActiveOrder struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	OrderID  int
	Kind     lob.OrderKind
}

// Trader holds a participant's settled balances and history. Cash and Units
// change only when the driver applies trades; commitments (margin earmarked
// by resting bids, inventory earmarked by resting asks) are derived from the
// book, never stored.
type Trader struct {
	ID               string
	Cash             decimal.Decimal
	Units            decimal.Decimal
	CheckFeasibility bool

	CashSeries   []Point
	UnitSeries   []Point
	WealthSeries []Point
	ActiveOrders []ActiveOrder
}

// NewTrader creates a trader with an initial cash balance and stock
// inventory. With checkFeasibility false the feasibility gate always passes.
func NewTrader(cash, units decimal.Decimal, checkFeasibility bool) *Trader {
	return &Trader{
		ID:               uuid.NewString(),
		Cash:             cash,
		Units:            units,
		CheckFeasibility: checkFeasibility,
	}
}

// Feasible reports whether the trader can honor the order given current
// holdings and commitments. Pure read of trader and book state:
//   - buys need uncommitted cash covering price*quantity, market buys priced
//     against the current best ask (an empty ask side makes the sweep a
//     no-op, so the order is trivially feasible);
//   - sells need uncommitted inventory covering the quantity;
//   - modifies need the trader's own resting volume at that price to cover
//     the reduction.
func (t *Trader) Feasible(order lob.Order, book *lob.OrderBook) bool {
	if !t.CheckFeasibility {
		return true
	}

	switch order.Kind {
	case lob.MarketBuy, lob.LimitBuy:
		price := order.Price
		if order.Kind == lob.MarketBuy {
			best, ok := book.BestAsk()
			if !ok {
				return true
			}
			price = best.Price
		}
		cost := round5(price.Mul(order.Quantity))
		return t.availableCash(book).GreaterThanOrEqual(cost)

	case lob.MarketSell, lob.LimitSell:
		return t.availableUnits(book).GreaterThanOrEqual(order.Quantity)

	case lob.ModifyLimitBuy:
		return t.restingVolumeAt(book.Bids(), order.Price).GreaterThanOrEqual(order.Quantity)

	case lob.ModifyLimitSell:
		return t.restingVolumeAt(book.Asks(), order.Price).GreaterThanOrEqual(order.Quantity)

	default:
		return true
	}
}

// availableCash is settled cash minus the value committed by resting bids.
func (t *Trader) availableCash(book *lob.OrderBook) decimal.Decimal {
	committed := decimal.Zero
	for _, e := range book.Bids() {
		if e.TraderID == t.ID {
			committed = round5(committed.Add(e.Price.Mul(e.Quantity)))
		}
	}
	return round5(t.Cash.Sub(committed))
}

// availableUnits is settled inventory minus the volume committed by resting
// asks.
func (t *Trader) availableUnits(book *lob.OrderBook) decimal.Decimal {
	committed := decimal.Zero
	for _, e := range book.Asks() {
		if e.TraderID == t.ID {
			committed = round5(committed.Add(e.Quantity))
		}
	}
	return round5(t.Units.Sub(committed))
}

func (t *Trader) restingVolumeAt(entries []lob.BookEntry, price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.TraderID == t.ID && e.Price.Equal(price) {
			total = round5(total.Add(e.Quantity))
		}
	}
	return total
}

func round5(d decimal.Decimal) decimal.Decimal {
	return d.Round(5)
}
