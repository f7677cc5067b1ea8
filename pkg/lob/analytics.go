package lob

import (
	"math"

	"github.com/shopspring/decimal"
)

// Derived metrics are float64 so that an empty book side can propagate as
// NaN through the sequences; the book itself stays decimal. Order-flow
// imbalance is the one asymmetric metric: missing data yields 0, not NaN.

// updateSequences appends one entry to every derived sequence for the
// current step. The computation order matters: the order-flow imbalance
// reads the previous step's best-of-book tracker, which the book-state
// update then refreshes.
func (b *OrderBook) updateSequences() {
	b.midPrices = append(b.midPrices, b.MidPrice())
	b.microPrices = append(b.microPrices, b.MicroPrice())
	b.spreads = append(b.spreads, b.Spread())
	b.updatePriceVolume()
	b.volumeImbalances = append(b.volumeImbalances, b.VolumeImbalance())
	b.orderFlowImbalances = append(b.orderFlowImbalances, b.OrderFlowImbalance())
	b.updateBookState()
	b.depthsBySize = append(b.depthsBySize, b.DepthBySize())
	b.depthsByVolume = append(b.depthsByVolume, b.DepthByVolume())
}

// MidPrice returns (bestAsk+bestBid)/2, NaN if either side is empty.
func (b *OrderBook) MidPrice() float64 {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return math.NaN()
	}
	return ask.Price.Add(bid.Price).InexactFloat64() / 2
}

// MicroPrice returns the volume-weighted best-of-book price
// (bidVol*askPrice + askVol*bidPrice) / (bidVol+askVol), NaN if either side
// is empty. Volume at best aggregates every entry sharing the best price.
func (b *OrderBook) MicroPrice() float64 {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return math.NaN()
	}
	va := b.volumeAtPrice(b.asks, ask.Price).InexactFloat64()
	vb := b.volumeAtPrice(b.bids, bid.Price).InexactFloat64()
	return (vb*ask.Price.InexactFloat64() + va*bid.Price.InexactFloat64()) / (va + vb)
}

// Spread returns bestAsk-bestBid, NaN if either side is empty.
func (b *OrderBook) Spread() float64 {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return math.NaN()
	}
	return round5(ask.Price.Sub(bid.Price)).InexactFloat64()
}

// VolumeImbalance returns (bidVolAtBest-askVolAtBest)/(bidVolAtBest+askVolAtBest),
// NaN if either side is empty.
func (b *OrderBook) VolumeImbalance() float64 {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return math.NaN()
	}
	va := b.volumeAtPrice(b.asks, ask.Price)
	vb := b.volumeAtPrice(b.bids, bid.Price)
	return round5(vb.Sub(va)).InexactFloat64() / vb.Add(va).InexactFloat64()
}

// OrderFlowImbalance compares the current best price/volume on each side to
// the previous step's snapshot: a price improvement counts the full current
// volume, a worsening counts the negative of the previous volume, an
// unchanged price counts the volume delta. The result is bidDelta-askDelta.
// The very first step, an empty side and an unseen previous best all yield 0.
func (b *OrderBook) OrderFlowImbalance() float64 {
	if b.step <= 1 {
		return 0
	}
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB || !b.lastBestBid.ok || !b.lastBestAsk.ok {
		return 0
	}

	va := b.volumeAtPrice(b.asks, ask.Price)
	vb := b.volumeAtPrice(b.bids, bid.Price)

	var deltaBid decimal.Decimal
	switch bid.Price.Cmp(b.lastBestBid.price) {
	case 1:
		deltaBid = vb
	case -1:
		deltaBid = b.lastBestBid.volume.Neg()
	default:
		deltaBid = round5(vb.Sub(b.lastBestBid.volume))
	}

	var deltaAsk decimal.Decimal
	switch ask.Price.Cmp(b.lastBestAsk.price) {
	case 1:
		deltaAsk = b.lastBestAsk.volume.Neg()
	case -1:
		deltaAsk = va
	default:
		deltaAsk = round5(va.Sub(b.lastBestAsk.volume))
	}

	return round5(deltaBid.Sub(deltaAsk)).InexactFloat64()
}

// updatePriceVolume extends the executed-price, traded-volume and
// buy/sell-flag sequences. A step with trades records the last trade's price
// and the summed volume; a step without repeats the previous executed price
// (or the mid price when nothing has traded yet) with zero volume.
func (b *OrderBook) updatePriceVolume() {
	trades := b.trades[b.step]
	if len(trades) > 0 {
		volume := decimal.Zero
		for _, t := range trades {
			volume = round5(volume.Add(t.Volume))
		}
		last := trades[len(trades)-1]
		b.executedPrices = append(b.executedPrices, last.Price.InexactFloat64())
		b.volumes = append(b.volumes, volume)
		if last.Direction == Buy {
			b.buyFlags = append(b.buyFlags, 1)
			b.sellFlags = append(b.sellFlags, 0)
		} else {
			b.buyFlags = append(b.buyFlags, 0)
			b.sellFlags = append(b.sellFlags, 1)
		}
		return
	}

	if n := len(b.executedPrices); n > 0 {
		b.executedPrices = append(b.executedPrices, b.executedPrices[n-1])
	} else {
		b.executedPrices = append(b.executedPrices, b.MidPrice())
	}
	b.volumes = append(b.volumes, decimal.Zero)
	b.buyFlags = append(b.buyFlags, 0)
	b.sellFlags = append(b.sellFlags, 0)
}

// updateBookState appends the aggregated snapshot of both sides and
// refreshes the last-best trackers used by the order-flow imbalance. An
// empty side leaves its tracker at the previous value.
func (b *OrderBook) updateBookState() {
	state := b.State()

	if len(state.Asks) > 0 {
		b.lastBestAsk = bestTracker{
			price:  state.Asks[0].Price,
			volume: state.Asks[0].Quantity,
			ok:     true,
		}
	}
	if len(state.Bids) > 0 {
		b.lastBestBid = bestTracker{
			price:  state.Bids[0].Price,
			volume: state.Bids[0].Quantity,
			ok:     true,
		}
	}

	b.states = append(b.states, state)
}

// State aggregates both sides per price level, best level first.
func (b *OrderBook) State() BookState {
	return BookState{
		Step: b.step,
		Asks: aggregate(b.asks),
		Bids: aggregate(b.bids),
	}
}

// DepthBySize counts distinct price levels per side.
func (b *OrderBook) DepthBySize() Depth {
	return Depth{
		AskLevels: len(aggregate(b.asks)),
		BidLevels: len(aggregate(b.bids)),
	}
}

// DepthByVolume sums resting quantity per side.
func (b *OrderBook) DepthByVolume() DepthVolume {
	askVolume := decimal.Zero
	for _, e := range b.asks {
		askVolume = askVolume.Add(e.Quantity)
	}
	bidVolume := decimal.Zero
	for _, e := range b.bids {
		bidVolume = bidVolume.Add(e.Quantity)
	}
	return DepthVolume{AskVolume: askVolume, BidVolume: bidVolume}
}

// volumeAtPrice sums the quantity of every entry at one price.
func (b *OrderBook) volumeAtPrice(entries []BookEntry, price decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.Price.Equal(price) {
			total = total.Add(e.Quantity)
		}
	}
	return total
}

// aggregate folds same-price entries of one sorted side into levels,
// preserving priority order.
func aggregate(entries []BookEntry) []Level {
	var levels []Level
	for _, e := range entries {
		if n := len(levels); n > 0 && levels[n-1].Price.Equal(e.Price) {
			levels[n-1].Quantity = levels[n-1].Quantity.Add(e.Quantity)
			continue
		}
		levels = append(levels, Level{Price: e.Price, Quantity: e.Quantity})
	}
	return levels
}

// Sequence accessors. Each slice holds exactly one entry per submitted
// order; index i corresponds to step i+1.

// ExecutedPrices returns the executed-price sequence.
func (b *OrderBook) ExecutedPrices() []float64 { return b.executedPrices }

// MidPrices returns the mid-price sequence.
func (b *OrderBook) MidPrices() []float64 { return b.midPrices }

// MicroPrices returns the micro-price sequence.
func (b *OrderBook) MicroPrices() []float64 { return b.microPrices }

// Spreads returns the bid-ask spread sequence.
func (b *OrderBook) Spreads() []float64 { return b.spreads }

// Volumes returns the per-step traded volume sequence.
func (b *OrderBook) Volumes() []decimal.Decimal { return b.volumes }

// BuyFlags returns 1 for steps whose trades were buys, else 0.
func (b *OrderBook) BuyFlags() []int { return b.buyFlags }

// SellFlags returns 1 for steps whose trades were sells, else 0.
func (b *OrderBook) SellFlags() []int { return b.sellFlags }

// VolumeImbalances returns the volume imbalance sequence.
func (b *OrderBook) VolumeImbalances() []float64 { return b.volumeImbalances }

// OrderFlowImbalances returns the order-flow imbalance sequence.
func (b *OrderBook) OrderFlowImbalances() []float64 { return b.orderFlowImbalances }

// States returns the per-step aggregated book snapshots.
func (b *OrderBook) States() []BookState { return b.states }

// DepthsBySize returns the per-step level-count depth sequence.
func (b *OrderBook) DepthsBySize() []Depth { return b.depthsBySize }

// DepthsByVolume returns the per-step volume depth sequence.
func (b *OrderBook) DepthsByVolume() []DepthVolume { return b.depthsByVolume }
