package lob

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func submitLimit(t *testing.T, book *OrderBook, kind OrderKind, price, qty, trader string) int {
	t.Helper()
	order, err := NewOrder(kind, dec(price), dec(qty), trader)
	require.NoError(t, err)
	step, err := book.Submit(order)
	require.NoError(t, err)
	return step
}

func submitMarket(t *testing.T, book *OrderBook, kind OrderKind, qty, trader string) int {
	t.Helper()
	order, err := NewOrder(kind, decimal.Zero, dec(qty), trader)
	require.NoError(t, err)
	step, err := book.Submit(order)
	require.NoError(t, err)
	return step
}

func TestLimitOrdersRestInPriorityOrder(t *testing.T) {
	book := NewOrderBook()

	submitLimit(t, book, LimitBuy, "9", "15", "t1")
	submitLimit(t, book, LimitBuy, "8", "4", "t1")

	bids := book.Bids()
	require.Len(t, bids, 2)
	assert.True(t, bids[0].Price.Equal(dec("9")))
	assert.True(t, bids[0].Quantity.Equal(dec("15")))
	assert.True(t, bids[1].Price.Equal(dec("8")))
	assert.True(t, bids[1].Quantity.Equal(dec("4")))
	assert.Empty(t, book.Asks())
}

func TestCrossableLimitBuyExecutesAtBestAsk(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "maker")
	submitLimit(t, book, LimitBuy, "8", "4", "maker")
	submitLimit(t, book, LimitSell, "10", "15", "maker")
	submitLimit(t, book, LimitSell, "11", "4", "maker")

	step := submitLimit(t, book, LimitBuy, "11", "5", "taker")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(dec("10")))
	assert.True(t, trades[0].Volume.Equal(dec("5")))
	assert.Equal(t, Buy, trades[0].Direction)
	assert.Equal(t, "maker", trades[0].RestingTrader)
	assert.Equal(t, "taker", trades[0].IncomingTrader)

	asks := book.Asks()
	require.Len(t, asks, 2)
	assert.True(t, asks[0].Price.Equal(dec("10")))
	assert.True(t, asks[0].Quantity.Equal(dec("10")), "partial fill must decrement in place")
	assert.True(t, asks[1].Price.Equal(dec("11")))
	assert.True(t, asks[1].Quantity.Equal(dec("4")), "no remainder may cross into the next level")
}

func TestAggressiveLimitSweepsThenRests(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitSell, "10", "3", "maker")
	submitLimit(t, book, LimitSell, "11", "2", "maker")

	step := submitLimit(t, book, LimitBuy, "11", "8", "taker")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("10")))
	assert.True(t, trades[0].Volume.Equal(dec("3")))
	assert.True(t, trades[1].Price.Equal(dec("11")))
	assert.True(t, trades[1].Volume.Equal(dec("2")))

	assert.Empty(t, book.Asks())
	bids := book.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(dec("11")))
	assert.True(t, bids[0].Quantity.Equal(dec("3")), "unfilled remainder rests at its limit price")
}

func TestMarketBuySweepsAndDiscardsRemainder(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitSell, "10", "15", "maker")
	submitLimit(t, book, LimitSell, "11", "4", "maker")

	step := submitMarket(t, book, MarketBuy, "20", "taker")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(dec("10")))
	assert.True(t, trades[0].Volume.Equal(dec("15")))
	assert.True(t, trades[1].Price.Equal(dec("11")))
	assert.True(t, trades[1].Volume.Equal(dec("4")))

	// The final unit found no liquidity: discarded, never rested.
	assert.Empty(t, book.Asks())
	assert.Empty(t, book.Bids())
}

func TestMarketOrderExactFillRemovesLevel(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitSell, "10", "15", "maker")
	submitLimit(t, book, LimitSell, "11", "4", "maker")

	step := submitMarket(t, book, MarketBuy, "15", "taker")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	require.Len(t, trades, 1, "exact equality must produce exactly one trade")
	assert.True(t, trades[0].Volume.Equal(dec("15")))

	asks := book.Asks()
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(dec("11")))
	assert.True(t, asks[0].Quantity.Equal(dec("4")), "next level must be untouched")
}

func TestMarketOrderOnEmptyBookIsSilent(t *testing.T) {
	book := NewOrderBook()

	step := submitMarket(t, book, MarketSell, "7", "taker")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, 1, book.Step())
	assert.Empty(t, book.Bids())
	assert.Empty(t, book.Asks())
}

func TestEqualPriceMatchesEarlierOrderFirst(t *testing.T) {
	book := NewOrderBook()
	first := submitLimit(t, book, LimitSell, "10", "5", "alice")
	second := submitLimit(t, book, LimitSell, "10", "7", "bob")

	step := submitMarket(t, book, MarketBuy, "6", "carol")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, first, trades[0].RestingOrderID)
	assert.True(t, trades[0].Volume.Equal(dec("5")))
	assert.Equal(t, second, trades[1].RestingOrderID)
	assert.True(t, trades[1].Volume.Equal(dec("1")))

	asks := book.Asks()
	require.Len(t, asks, 1)
	assert.Equal(t, second, asks[0].OrderID)
	assert.True(t, asks[0].Quantity.Equal(dec("6")))
}

func TestSamePriceEntriesStayIndependent(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "5", "alice")
	submitLimit(t, book, LimitBuy, "9", "3", "bob")

	bids := book.Bids()
	require.Len(t, bids, 2, "same-price entries must not merge")
	assert.Equal(t, "alice", bids[0].TraderID)
	assert.Equal(t, "bob", bids[1].TraderID)
}

func TestNoOpAdvancesStepWithoutBookEffect(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "maker")
	submitLimit(t, book, LimitSell, "10", "4", "maker")
	bidsBefore := book.Bids()
	asksBefore := book.Asks()
	seqLenBefore := len(book.MidPrices())

	step, err := book.Submit(NoOpOrder("idler"))
	require.NoError(t, err)

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, bidsBefore, book.Bids())
	assert.Equal(t, asksBefore, book.Asks())
	assert.Equal(t, seqLenBefore+1, len(book.MidPrices()))
	assert.Equal(t, seqLenBefore+1, len(book.ExecutedPrices()))
	assert.Equal(t, seqLenBefore+1, len(book.States()))
}

func TestBookNeverCrossedAfterSubmit(t *testing.T) {
	book := NewOrderBook()
	orders := []struct {
		kind  OrderKind
		price string
		qty   string
	}{
		{LimitBuy, "9", "10"},
		{LimitSell, "11", "10"},
		{LimitBuy, "12", "3"},
		{LimitSell, "8", "6"},
		{LimitBuy, "10", "2"},
		{LimitSell, "10", "2"},
	}

	for _, o := range orders {
		submitLimit(t, book, o.kind, o.price, o.qty, "t")
		bid, okB := book.BestBid()
		ask, okA := book.BestAsk()
		if okB && okA {
			assert.True(t, bid.Price.LessThan(ask.Price),
				"book crossed: bid %s >= ask %s", bid.Price, ask.Price)
		}
	}
}

func TestNoZeroQuantityEntriesSurvive(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitSell, "10", "5", "maker")
	submitMarket(t, book, MarketBuy, "5", "taker")

	for _, e := range append(book.Bids(), book.Asks()...) {
		assert.True(t, e.Quantity.IsPositive())
	}
	assert.Empty(t, book.Asks())
}

func TestModifyReducesRestingEntry(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "alice")

	order, err := NewOrder(ModifyLimitBuy, dec("9"), dec("6"), "alice")
	require.NoError(t, err)
	_, err = book.Submit(order)
	require.NoError(t, err)

	bids := book.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Quantity.Equal(dec("9")))
}

func TestModifyConsumesAcrossOwnEntries(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitSell, "10", "4", "alice")
	submitLimit(t, book, LimitSell, "10", "5", "bob")
	submitLimit(t, book, LimitSell, "10", "6", "alice")

	// Reduce alice by more than her first entry: the loop consumes the
	// first entry fully and takes the rest from her second.
	order, err := NewOrder(ModifyLimitSell, dec("10"), dec("7"), "alice")
	require.NoError(t, err)
	_, err = book.Submit(order)
	require.NoError(t, err)

	asks := book.Asks()
	require.Len(t, asks, 2)
	assert.Equal(t, "bob", asks[0].TraderID)
	assert.True(t, asks[0].Quantity.Equal(dec("5")))
	assert.Equal(t, "alice", asks[1].TraderID)
	assert.True(t, asks[1].Quantity.Equal(dec("3")))
}

func TestModifyDropsEntryAtExactZero(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "alice")

	order, err := NewOrder(ModifyLimitBuy, dec("9"), dec("15"), "alice")
	require.NoError(t, err)
	_, err = book.Submit(order)
	require.NoError(t, err)

	assert.Empty(t, book.Bids())
}

func TestModifyExceedingRestingVolumeFails(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "alice")
	stepBefore := book.Step()

	order, err := NewOrder(ModifyLimitBuy, dec("9"), dec("20"), "alice")
	require.NoError(t, err)
	step, err := book.Submit(order)
	assert.ErrorIs(t, err, ErrModifyExceedsResting)

	// Book untouched, but the step and the sequences still advanced.
	bids := book.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Quantity.Equal(dec("15")))
	assert.Equal(t, stepBefore+1, step)
	assert.Equal(t, step, len(book.MidPrices()))
}

func TestModifyIgnoresOtherTradersEntries(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "alice")

	order, err := NewOrder(ModifyLimitBuy, dec("9"), dec("5"), "bob")
	require.NoError(t, err)
	_, err = book.Submit(order)
	assert.ErrorIs(t, err, ErrModifyExceedsResting)

	bids := book.Bids()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Quantity.Equal(dec("15")))
}

func TestPartialFillRoundsToFiveDigits(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitSell, "10", "1.000004", "maker")

	step := submitMarket(t, book, MarketBuy, "0.000001", "taker")

	trades, err := book.TradesAt(step)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Volume.Equal(dec("0.000001")))

	asks := book.Asks()
	require.Len(t, asks, 1)
	// 1.000004 - 0.000001 = 1.000003, rounded to 5 fractional digits.
	assert.True(t, asks[0].Quantity.Equal(dec("1")), "got %s", asks[0].Quantity)
}

func TestSequenceLengthTracksSubmissions(t *testing.T) {
	book := NewOrderBook()
	submitLimit(t, book, LimitBuy, "9", "15", "t")
	submitMarket(t, book, MarketSell, "5", "t")
	_, err := book.Submit(NoOpOrder("t"))
	require.NoError(t, err)

	n := book.Step()
	assert.Equal(t, 3, n)
	assert.Len(t, book.ExecutedPrices(), n)
	assert.Len(t, book.MidPrices(), n)
	assert.Len(t, book.MicroPrices(), n)
	assert.Len(t, book.Spreads(), n)
	assert.Len(t, book.Volumes(), n)
	assert.Len(t, book.BuyFlags(), n)
	assert.Len(t, book.SellFlags(), n)
	assert.Len(t, book.VolumeImbalances(), n)
	assert.Len(t, book.OrderFlowImbalances(), n)
	assert.Len(t, book.States(), n)
	assert.Len(t, book.DepthsBySize(), n)
	assert.Len(t, book.DepthsByVolume(), n)
}

func TestTradesAtUnknownStep(t *testing.T) {
	book := NewOrderBook()
	_, err := book.TradesAt(7)
	assert.ErrorIs(t, err, ErrNoSuchStep)
}
