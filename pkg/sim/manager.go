package sim

import (
	"fmt"
	"time"

	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/marketsim/lob/pkg/lob"
	"github.com/marketsim/lob/pkg/metrics"
)

// Errors
var (
	ErrUnknownTrader = fmt.Errorf("unknown trader")
)

// Strategy proposes the orders to submit at one simulation step. Returning
// no orders still advances trader bookkeeping for the step.
type Strategy func(step int, m *MarketManager) []lob.Order

// MarketManager drives the simulation: it owns the book and the traders,
// gates every order through the participant feasibility check and applies
// trade side effects to both counterparties. The engine itself never touches
// balances.
type MarketManager struct {
	book    *lob.OrderBook
	traders map[string]*Trader
	roster  []*Trader
	logger  log.Logger
	metrics *metrics.Metrics

	// markPrice is the last traded price, used to value inventory in the
	// wealth series. Zero until the first trade, so wealth starts as cash.
	markPrice decimal.Decimal
}

// NewMarketManager builds a driver around a book and its participants.
func NewMarketManager(book *lob.OrderBook, logger log.Logger, traders ...*Trader) *MarketManager {
	m := &MarketManager{
		book:    book,
		traders: make(map[string]*Trader, len(traders)),
		logger:  logger,
	}
	for _, t := range traders {
		m.traders[t.ID] = t
		m.roster = append(m.roster, t)
	}
	return m
}

// AttachMetrics wires Prometheus instrumentation into the submit path.
func (m *MarketManager) AttachMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// Book returns the managed order book.
func (m *MarketManager) Book() *lob.OrderBook {
	return m.book
}

// Trader looks up a participant by id.
func (m *MarketManager) Trader(id string) (*Trader, bool) {
	t, ok := m.traders[id]
	return t, ok
}

// Traders returns the participants in registration order.
func (m *MarketManager) Traders() []*Trader {
	return m.roster
}

// Run executes the simulation loop: step 0 records initial balances, then
// each step submits the strategy's orders, settles the resulting trades and
// snapshots every trader's balances and active orders.
func (m *MarketManager) Run(steps int, strategy Strategy) error {
	m.recordBalances(0)

	for step := 1; step <= steps; step++ {
		for _, order := range strategy(step, m) {
			if _, _, err := m.Submit(order); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
		}
		m.recordBalances(step)
		m.refreshActiveOrders()
	}

	m.logger.Info("simulation finished",
		"steps", steps,
		"bookSteps", m.book.Step(),
		"traders", len(m.roster))
	return nil
}

// Submit gates one order through the feasibility check, downgrading an
// infeasible order to a no-op (still submitted, so the book step and every
// derived sequence advance), then applies the new trades to both
// counterparties. It returns the book step and the trades it settled.
func (m *MarketManager) Submit(order lob.Order) (int, []lob.Trade, error) {
	trader, ok := m.traders[order.TraderID]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownTrader, order.TraderID)
	}

	submitted := order
	if !trader.Feasible(order, m.book) {
		m.logger.Info("order infeasible, downgraded to no-op",
			"trader", order.TraderID,
			"kind", order.Kind.String(),
			"price", order.Price,
			"quantity", order.Quantity)
		submitted = lob.NoOpOrder(order.TraderID)
	} else {
		m.logger.Debug("submitting order",
			"trader", order.TraderID,
			"kind", order.Kind.String(),
			"price", order.Price,
			"quantity", order.Quantity)
	}

	start := time.Now()
	step, err := m.book.Submit(submitted)
	if err != nil {
		return step, nil, err
	}

	trades, err := m.book.TradesAt(step)
	if err != nil {
		return step, nil, err
	}
	for _, trade := range trades {
		m.applyTrade(trade)
	}

	if m.metrics != nil {
		m.metrics.RecordSubmit(time.Since(start), len(trades), m.book.DepthBySize())
	}
	return step, trades, nil
}

// applyTrade settles one match: on a buy the incoming trader pays and
// receives stock while the resting seller is credited, mirrored for a sell.
// Counterparties outside the roster (pre-seeded liquidity) are skipped.
func (m *MarketManager) applyTrade(trade lob.Trade) {
	incoming := m.traders[trade.IncomingTrader]
	resting := m.traders[trade.RestingTrader]
	value := round5(trade.Price.Mul(trade.Volume))
	m.markPrice = trade.Price

	if trade.Direction == lob.Buy {
		if incoming != nil {
			incoming.Cash = round5(incoming.Cash.Sub(value))
			incoming.Units = round5(incoming.Units.Add(trade.Volume))
		}
		if resting != nil {
			resting.Cash = round5(resting.Cash.Add(value))
			resting.Units = round5(resting.Units.Sub(trade.Volume))
		}
		return
	}

	if incoming != nil {
		incoming.Cash = round5(incoming.Cash.Add(value))
		incoming.Units = round5(incoming.Units.Sub(trade.Volume))
	}
	if resting != nil {
		resting.Cash = round5(resting.Cash.Sub(value))
		resting.Units = round5(resting.Units.Add(trade.Volume))
	}
}

func (m *MarketManager) recordBalances(step int) {
	for _, t := range m.roster {
		wealth := round5(t.Cash.Add(t.Units.Mul(m.markPrice)))
		t.CashSeries = append(t.CashSeries, Point{Step: step, Value: t.Cash})
		t.UnitSeries = append(t.UnitSeries, Point{Step: step, Value: t.Units})
		t.WealthSeries = append(t.WealthSeries, Point{Step: step, Value: wealth})
	}
}

// refreshActiveOrders rebuilds every trader's resting-order view from the
// book.
func (m *MarketManager) refreshActiveOrders() {
	for _, t := range m.roster {
		t.ActiveOrders = t.ActiveOrders[:0]
	}
	for _, e := range m.book.Bids() {
		if t, ok := m.traders[e.TraderID]; ok {
			t.ActiveOrders = append(t.ActiveOrders, ActiveOrder{
				Price: e.Price, Quantity: e.Quantity, OrderID: e.OrderID, Kind: lob.LimitBuy,
			})
		}
	}
	for _, e := range m.book.Asks() {
		if t, ok := m.traders[e.TraderID]; ok {
			t.ActiveOrders = append(t.ActiveOrders, ActiveOrder{
				Price: e.Price, Quantity: e.Quantity, OrderID: e.OrderID, Kind: lob.LimitSell,
			})
		}
	}
}
