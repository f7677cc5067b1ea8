package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"

	"github.com/luxfi/log"
	"github.com/shopspring/decimal"

	"github.com/marketsim/lob/pkg/lob"
	"github.com/marketsim/lob/pkg/metrics"
	"github.com/marketsim/lob/pkg/sim"
)

const (
	defaultSteps     = 200
	defaultTraders   = 5
	defaultBasePrice = 100
)

type Config struct {
	Steps       int
	Traders     int
	Seed        int64
	MetricsPort int
	CSVPath     string
	LogLevel    string
	Render      bool
	CheckOrders bool
}

func main() {
	config := parseFlags()

	level, _ := log.ToLevel(config.LogLevel)
	logger := log.NewTestLogger(level).New("module", "lobsim")
	logger.Info("Starting order book simulation",
		"steps", config.Steps,
		"traders", config.Traders,
		"seed", config.Seed)

	book := lob.NewOrderBook()

	rng := rand.New(rand.NewSource(config.Seed))
	traders := make([]*sim.Trader, config.Traders)
	for i := range traders {
		cash := decimal.NewFromInt(int64(5000 + rng.Intn(5000)))
		units := decimal.NewFromInt(int64(20 + rng.Intn(80)))
		traders[i] = sim.NewTrader(cash, units, config.CheckOrders)
	}

	mgr := sim.NewMarketManager(book, logger, traders...)

	if config.MetricsPort > 0 {
		m := metrics.New("lobsim")
		mgr.AttachMetrics(m)
		go serveMetrics(logger, m, config.MetricsPort)
	}

	if err := mgr.Run(config.Steps, randomFlow(rng, traders)); err != nil {
		logger.Error("Simulation failed", "error", err)
		os.Exit(1)
	}

	if config.Render {
		book.RenderState(os.Stdout)
	}

	if config.CSVPath != "" {
		if err := exportSequences(book, config.CSVPath); err != nil {
			logger.Error("Failed to export sequences", "error", err)
			os.Exit(1)
		}
		logger.Info("Sequences exported", "path", config.CSVPath, "rows", book.Step())
	}

	logger.Info("Simulation summary",
		"bookSteps", book.Step(),
		"midPrice", book.MidPrice(),
		"spread", book.Spread())
}

func parseFlags() *Config {
	config := &Config{}
	flag.IntVar(&config.Steps, "steps", defaultSteps, "Number of simulation steps")
	flag.IntVar(&config.Traders, "traders", defaultTraders, "Number of traders")
	flag.Int64Var(&config.Seed, "seed", 1, "Random seed")
	flag.IntVar(&config.MetricsPort, "metrics-port", 0, "Prometheus metrics port (0 disables)")
	flag.StringVar(&config.CSVPath, "csv", "", "Path for the derived-sequence CSV export")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&config.Render, "render", true, "Render the final book state")
	flag.BoolVar(&config.CheckOrders, "check-orders", true, "Gate orders through the feasibility check")
	flag.Parse()
	return config
}

// randomFlow proposes one random order per step: limit orders quoted around
// the current mid (or the base price while the book is empty), occasionally
// a market order or a no-op.
func randomFlow(rng *rand.Rand, traders []*sim.Trader) sim.Strategy {
	return func(step int, m *sim.MarketManager) []lob.Order {
		trader := traders[rng.Intn(len(traders))]

		ref := defaultBasePrice
		if mid := m.Book().MidPrice(); mid == mid { // NaN check
			ref = int(mid)
		}
		qty := decimal.NewFromInt(int64(1 + rng.Intn(10)))

		var order lob.Order
		var err error
		switch roll := rng.Intn(10); {
		case roll < 4:
			price := decimal.NewFromInt(int64(ref - rng.Intn(3)))
			order, err = lob.NewOrder(lob.LimitBuy, price, qty, trader.ID)
		case roll < 8:
			price := decimal.NewFromInt(int64(ref + 1 + rng.Intn(3)))
			order, err = lob.NewOrder(lob.LimitSell, price, qty, trader.ID)
		case roll < 9:
			kind := lob.MarketBuy
			if rng.Intn(2) == 0 {
				kind = lob.MarketSell
			}
			order, err = lob.NewOrder(kind, decimal.Zero, qty, trader.ID)
		default:
			order = lob.NoOpOrder(trader.ID)
		}
		if err != nil {
			return nil
		}
		return []lob.Order{order}
	}
}

func serveMetrics(logger log.Logger, m *metrics.Metrics, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Metrics server started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("Metrics server stopped", "error", err)
	}
}

// exportSequences writes the index-aligned derived sequences as CSV, the
// hand-off format for external plotting of order-flow snapshots.
func exportSequences(book *lob.OrderBook, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"step", "executed_price", "mid_price", "micro_price", "spread",
		"volume", "buy", "sell", "volume_imbalance", "order_flow_imbalance",
		"ask_levels", "bid_levels", "ask_volume", "bid_volume",
	}); err != nil {
		return err
	}

	prices := book.ExecutedPrices()
	mids := book.MidPrices()
	micros := book.MicroPrices()
	spreads := book.Spreads()
	volumes := book.Volumes()
	buys := book.BuyFlags()
	sells := book.SellFlags()
	volImbs := book.VolumeImbalances()
	ofis := book.OrderFlowImbalances()
	sizes := book.DepthsBySize()
	depthVols := book.DepthsByVolume()

	for i := 0; i < book.Step(); i++ {
		row := []string{
			strconv.Itoa(i + 1),
			formatFloat(prices[i]),
			formatFloat(mids[i]),
			formatFloat(micros[i]),
			formatFloat(spreads[i]),
			volumes[i].String(),
			strconv.Itoa(buys[i]),
			strconv.Itoa(sells[i]),
			formatFloat(volImbs[i]),
			formatFloat(ofis[i]),
			strconv.Itoa(sizes[i].AskLevels),
			strconv.Itoa(sizes[i].BidLevels),
			depthVols[i].AskVolume.String(),
			depthVols[i].BidVolume.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
