package lob

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// scale is the number of fractional digits kept after every arithmetic
// operation that feeds stored quantities or trade values. Long simulations
// accumulate drift otherwise.
const scale = 5

func round5(d decimal.Decimal) decimal.Decimal {
	return d.Round(scale)
}

// bestTracker remembers the best price/volume of one side at the previous
// step, for the order-flow imbalance delta.
type bestTracker struct {
	price  decimal.Decimal
	volume decimal.Decimal
	ok     bool
}

// OrderBook is a single-instrument limit order book with price-time
// priority. It owns its bid/ask collections, the per-step trade ledger and
// every derived sequence. A book is exclusively owned by one driver
// goroutine; no locking is provided.
type OrderBook struct {
	bids []BookEntry // sorted by (price desc, orderID asc)
	asks []BookEntry // sorted by (price asc, orderID asc)

	step   int
	trades map[int][]Trade

	// Derived sequences, exactly one entry appended per Submit.
	executedPrices      []float64
	midPrices           []float64
	microPrices         []float64
	spreads             []float64
	volumes             []decimal.Decimal
	buyFlags            []int
	sellFlags           []int
	volumeImbalances    []float64
	orderFlowImbalances []float64
	states              []BookState
	depthsBySize        []Depth
	depthsByVolume      []DepthVolume

	lastBestBid bestTracker
	lastBestAsk bestTracker
}

// NewOrderBook creates an empty book at step 0.
func NewOrderBook() *OrderBook {
	return &OrderBook{
		trades: make(map[int][]Trade),
	}
}

// Step returns the number of orders processed so far.
func (b *OrderBook) Step() int {
	return b.step
}

// Submit consumes one order: it advances the step counter, opens a ledger
// entry for the step (kept even when no match happens), dispatches on the
// order kind and then appends one entry to every derived sequence. The new
// step index is returned.
//
// A modify whose requested reduction exceeds the owner's resting volume at
// that price returns ErrModifyExceedsResting with the book left untouched;
// the step and the sequences still advance so that sequence length always
// equals the number of submitted orders.
func (b *OrderBook) Submit(order Order) (int, error) {
	b.step++
	b.trades[b.step] = []Trade{}

	var err error
	switch order.Kind {
	case MarketBuy:
		b.executeMarketOrder(order.Quantity, Buy, b.step, order.TraderID)
	case MarketSell:
		b.executeMarketOrder(order.Quantity, Sell, b.step, order.TraderID)
	case LimitBuy:
		b.addLimitOrder(order.Price, order.Quantity, Buy, b.step, order.TraderID)
	case LimitSell:
		b.addLimitOrder(order.Price, order.Quantity, Sell, b.step, order.TraderID)
	case ModifyLimitBuy:
		err = b.reduceResting(order.Price, order.Quantity, Buy, order.TraderID)
	case ModifyLimitSell:
		err = b.reduceResting(order.Price, order.Quantity, Sell, order.TraderID)
	case NoOp:
		// Book untouched; sequences advance below.
	default:
		err = fmt.Errorf("%w: %d", ErrInvalidOrderKind, int(order.Kind))
	}

	b.updateSequences()
	return b.step, err
}

// executeMarketOrder sweeps the opposite side best-first. A buy consumes
// asks, a sell consumes bids. Quantity that finds no liquidity is discarded:
// market orders never rest.
func (b *OrderBook) executeMarketOrder(quantity decimal.Decimal, side Side, orderID int, traderID string) {
	opposite := &b.asks
	if side == Sell {
		opposite = &b.bids
	}

	for quantity.IsPositive() {
		if len(*opposite) == 0 {
			return
		}
		best := &(*opposite)[0]

		if quantity.GreaterThanOrEqual(best.Quantity) {
			b.recordTrade(Trade{
				Price:           best.Price,
				Volume:          best.Quantity,
				Direction:       side,
				RestingTrader:   best.TraderID,
				IncomingTrader:  traderID,
				RestingOrderID:  best.OrderID,
				IncomingOrderID: orderID,
			})
			quantity = round5(quantity.Sub(best.Quantity))
			*opposite = (*opposite)[1:]
			continue
		}

		b.recordTrade(Trade{
			Price:           best.Price,
			Volume:          quantity,
			Direction:       side,
			RestingTrader:   best.TraderID,
			IncomingTrader:  traderID,
			RestingOrderID:  best.OrderID,
			IncomingOrderID: orderID,
		})
		best.Quantity = round5(best.Quantity.Sub(quantity))
		return
	}
}

// addLimitOrder places a limit order. A crossable order (buy priced at or
// above the best ask, sell priced at or below the best bid) executes against
// the best opposite level for min(quantity, level head) and loops with the
// remainder, so a large aggressive order sweeps several levels before any
// remainder rests. A non-crossable order rests at its price; entries at the
// same price stay independent, distinguished by (price, orderID).
func (b *OrderBook) addLimitOrder(price, quantity decimal.Decimal, side Side, orderID int, traderID string) {
	for quantity.IsPositive() {
		best, ok := b.bestOpposite(side)
		crossable := ok && ((side == Buy && price.GreaterThanOrEqual(best.Price)) ||
			(side == Sell && price.LessThanOrEqual(best.Price)))

		if !crossable {
			b.rest(side, BookEntry{Price: price, Quantity: quantity, OrderID: orderID, TraderID: traderID})
			return
		}

		fill := decimal.Min(quantity, best.Quantity)
		b.executeMarketOrder(fill, side, orderID, traderID)
		quantity = round5(quantity.Sub(fill))
	}
}

// reduceResting lowers the owner's resting volume at a price, consuming the
// owner's entries at that level oldest-first until the requested quantity is
// covered. A surviving remainder entry is removed and re-inserted through the
// normal sort, so it queues behind same-price entries with lower order IDs.
func (b *OrderBook) reduceResting(price, quantity decimal.Decimal, side Side, traderID string) error {
	entries := &b.bids
	if side == Sell {
		entries = &b.asks
	}

	total := decimal.Zero
	for _, e := range *entries {
		if e.Price.Equal(price) && e.TraderID == traderID {
			total = round5(total.Add(e.Quantity))
		}
	}
	if total.LessThan(quantity) {
		return fmt.Errorf("%w: trader %s has %s resting at %s, requested %s",
			ErrModifyExceedsResting, traderID, total, price, quantity)
	}

	remaining := quantity
	for remaining.IsPositive() {
		idx := -1
		for i, e := range *entries {
			if e.Price.Equal(price) && e.TraderID == traderID {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}

		entry := (*entries)[idx]
		*entries = append((*entries)[:idx], (*entries)[idx+1:]...)

		left := round5(entry.Quantity.Sub(remaining))
		if left.IsPositive() {
			entry.Quantity = left
			b.rest(side, entry)
			return nil
		}
		remaining = left.Neg()
	}
	return nil
}

// bestOpposite returns the best entry on the side an incoming order would
// trade against.
func (b *OrderBook) bestOpposite(side Side) (BookEntry, bool) {
	if side == Buy {
		return b.BestAsk()
	}
	return b.BestBid()
}

// rest inserts an entry at its priority position: bids by (price desc,
// orderID asc), asks by (price asc, orderID asc).
func (b *OrderBook) rest(side Side, entry BookEntry) {
	if side == Buy {
		i := sort.Search(len(b.bids), func(i int) bool {
			if !b.bids[i].Price.Equal(entry.Price) {
				return b.bids[i].Price.LessThan(entry.Price)
			}
			return b.bids[i].OrderID > entry.OrderID
		})
		b.bids = append(b.bids, BookEntry{})
		copy(b.bids[i+1:], b.bids[i:])
		b.bids[i] = entry
		return
	}

	i := sort.Search(len(b.asks), func(i int) bool {
		if !b.asks[i].Price.Equal(entry.Price) {
			return b.asks[i].Price.GreaterThan(entry.Price)
		}
		return b.asks[i].OrderID > entry.OrderID
	})
	b.asks = append(b.asks, BookEntry{})
	copy(b.asks[i+1:], b.asks[i:])
	b.asks[i] = entry
}

func (b *OrderBook) recordTrade(trade Trade) {
	b.trades[b.step] = append(b.trades[b.step], trade)
}

// BestBid returns the highest-priority bid.
func (b *OrderBook) BestBid() (BookEntry, bool) {
	if len(b.bids) == 0 {
		return BookEntry{}, false
	}
	return b.bids[0], true
}

// BestAsk returns the highest-priority ask.
func (b *OrderBook) BestAsk() (BookEntry, bool) {
	if len(b.asks) == 0 {
		return BookEntry{}, false
	}
	return b.asks[0], true
}

// Bids returns a copy of the bid side in priority order.
func (b *OrderBook) Bids() []BookEntry {
	out := make([]BookEntry, len(b.bids))
	copy(out, b.bids)
	return out
}

// Asks returns a copy of the ask side in priority order.
func (b *OrderBook) Asks() []BookEntry {
	out := make([]BookEntry, len(b.asks))
	copy(out, b.asks)
	return out
}

// TradesAt returns the trades generated at a step, in match order. The
// ledger has an entry for every processed step, empty when nothing matched.
func (b *OrderBook) TradesAt(step int) ([]Trade, error) {
	trades, ok := b.trades[step]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchStep, step)
	}
	out := make([]Trade, len(trades))
	copy(out, trades)
	return out, nil
}
