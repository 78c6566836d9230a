package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/di"
	"github.com/aristath/portfolio-analytics/internal/domain"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/optimization"
	"github.com/aristath/portfolio-analytics/internal/utils"
	"github.com/aristath/portfolio-analytics/pkg/logger"
)

var commands = []subcommands.Command{
	&kpisCmd{},
	&optimizeCmd{},
	&pricesCmd{},
	&purgeCmd{},
}

// stdout is replaced in tests
var stdout io.Writer = os.Stdout

// wire loads configuration and builds the container. Logs go to stderr so
// stdout carries only JSON.
func wire() (*di.Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.Pretty, Output: os.Stderr})
	return di.Wire(cfg, log)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// rangeFlags are shared by every command that reads history.
type rangeFlags struct {
	tickers string
	start   string
	end     string
	years   int
}

func (r *rangeFlags) register(f *flag.FlagSet, defaultYears int) {
	f.StringVar(&r.tickers, "tickers", "", "comma separated ticker symbols")
	f.StringVar(&r.start, "start", "", "start date (YYYY-MM-DD), requires -end")
	f.StringVar(&r.end, "end", "", "end date (YYYY-MM-DD), requires -start")
	f.IntVar(&r.years, "years", defaultYears, "years of history ending today")
}

func (r *rangeFlags) resolve() ([]string, string, string, error) {
	tickers := utils.ParseCSV(r.tickers)
	if len(tickers) == 0 {
		return nil, "", "", fmt.Errorf("%w: -tickers is required", domain.ErrInvalidInput)
	}
	start, end, err := marketdata.ResolveRange(r.start, r.end, r.years, time.Now())
	if err != nil {
		return nil, "", "", err
	}
	return tickers, start, end, nil
}

type kpisCmd struct {
	rangeFlags
}

func (*kpisCmd) Name() string     { return "kpis" }
func (*kpisCmd) Synopsis() string { return "compute RSI, Bollinger, P/E, beta and MACD per ticker" }
func (*kpisCmd) Usage() string {
	return `analytics kpis -tickers A,B [-years n | -start d -end d]

  Prints the latest indicator values for each ticker with enough history.
`
}

func (c *kpisCmd) SetFlags(f *flag.FlagSet) {
	c.register(f, 5)
}

func (c *kpisCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tickers, start, end, err := c.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	container, err := wire()
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	kpis, err := container.Indicators.ComputeKPIs(ctx, tickers, start, end)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(kpis); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type optimizeCmd struct {
	rangeFlags
	model     string
	rf        float64
	viewsFile string
}

func (*optimizeCmd) Name() string     { return "optimize" }
func (*optimizeCmd) Synopsis() string { return "compute long-only portfolio weights" }
func (*optimizeCmd) Usage() string {
	return `analytics optimize -model <mean-variance|risk-parity|black-litterman> -tickers A,B [-rf r] [-views file]

  Prints the optimal weights with annualized return, volatility and Sharpe ratio.
  -rf defaults to RISK_FREE_RATE, or BL_RISK_FREE_RATE for black-litterman.
`
}

func (c *optimizeCmd) SetFlags(f *flag.FlagSet) {
	c.register(f, 5)
	f.StringVar(&c.model, "model", "mean-variance", "mean-variance, risk-parity or black-litterman")
	f.Float64Var(&c.rf, "rf", -1, "annual risk-free rate (0.0-0.2)")
	f.StringVar(&c.viewsFile, "views", "", "YAML file with Black-Litterman views")
}

func (c *optimizeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tickers, start, end, err := c.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	var views optimization.Views
	if c.viewsFile != "" {
		if views, err = optimization.LoadViews(c.viewsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
	}

	container, err := wire()
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	analytics := container.Config.Analytics
	var result domain.OptimizationResult
	switch c.model {
	case "mean-variance":
		result, err = container.Optimization.OptimizeMeanVariance(ctx, tickers, start, end, c.rate(analytics.RiskFreeRate))
	case "risk-parity":
		result, err = container.Optimization.OptimizeRiskParity(ctx, tickers, start, end, c.rate(analytics.RiskFreeRate))
	case "black-litterman":
		result, err = container.Optimization.OptimizeBlackLitterman(ctx, tickers, start, end, c.rate(analytics.BLRiskFreeRate), views)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown model %q\n", c.model)
		return subcommands.ExitUsageError
	}
	if err != nil {
		return fail(err)
	}
	if err := printJSON(result); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

func (c *optimizeCmd) rate(fallback float64) float64 {
	if c.rf < 0 {
		return fallback
	}
	return c.rf
}

type pricesCmd struct {
	rangeFlags
}

func (*pricesCmd) Name() string     { return "prices" }
func (*pricesCmd) Synopsis() string { return "print the aligned adjusted close matrix" }
func (*pricesCmd) Usage() string {
	return `analytics prices -tickers A,B [-years n | -start d -end d]

  Fetches (or reads from cache) daily history and prints it aligned by date.
`
}

func (c *pricesCmd) SetFlags(f *flag.FlagSet) {
	c.register(f, 1)
}

func (c *pricesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tickers, start, end, err := c.resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	container, err := wire()
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	matrix, err := container.MarketData.GetPriceHistoryBatch(ctx, tickers, start, end)
	if err != nil {
		return fail(err)
	}
	if err := printJSON(nullableMatrix(matrix)); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// nullableMatrix replaces NaN gaps with nulls so the matrix encodes as JSON.
func nullableMatrix(m domain.PriceMatrix) map[string]interface{} {
	data := make(map[string][]*float64, len(m.Tickers))
	for _, t := range m.Tickers {
		col := m.Column(t)
		out := make([]*float64, len(col))
		for i, v := range col {
			if !math.IsNaN(v) {
				v := v
				out[i] = &v
			}
		}
		data[t] = out
	}
	return map[string]interface{}{
		"dates":   m.Dates,
		"tickers": m.Tickers,
		"data":    data,
	}
}

type purgeCmd struct{}

func (*purgeCmd) Name() string     { return "purge" }
func (*purgeCmd) Synopsis() string { return "delete expired market data cache entries" }
func (*purgeCmd) Usage() string {
	return `analytics purge

  Runs the cache cleanup job once.
`
}

func (*purgeCmd) SetFlags(*flag.FlagSet) {}

func (*purgeCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	container, err := wire()
	if err != nil {
		return fail(err)
	}
	defer container.Close()

	if err := container.Scheduler.RunNow(container.Jobs.CacheCleanup); err != nil {
		return fail(err)
	}
	if err := printJSON(map[string]string{"status": "success"}); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
