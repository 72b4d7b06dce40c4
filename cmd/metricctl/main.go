// Package main implements metricctl, an operator CLI for the metric catalog.
//
// Usage:
//
//	metricctl [flags] <command> [args]
//
// Commands:
//
//	bootstrap                 install or refresh the system metric catalog
//	list                      list metrics visible to --user (optionally --scope)
//	compute <metric-id>       evaluate a metric for --portfolio, --position or --transaction
//	performance <portfolio>   summarize a portfolio's performance
//	sync-prices               fetch the latest price for every active position
//	clear-computed            delete every written-through computed value
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/di"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/pkg/logger"
)

var errUsage = errors.New("usage: metricctl [flags] <bootstrap|list|compute|performance|sync-prices|clear-computed> [args]")

type flags struct {
	Format        string
	User          string
	Scope         string
	PortfolioID   string
	PositionID    string
	TransactionID string
	Verbose       bool
}

// Bind registers the flag definitions with the given flag set.
func (f *flags) Bind(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&f.Format, "format", "o", "table", "Output format (table, yaml, json)")
	flagSet.StringVarP(&f.User, "user", "u", "", "Evaluate as this user (feature switches, custom metrics)")
	flagSet.StringVar(&f.Scope, "scope", "", "Filter list by scope (portfolio, position, transaction)")
	flagSet.StringVar(&f.PortfolioID, "portfolio", "", "Portfolio target id")
	flagSet.StringVar(&f.PositionID, "position", "", "Position target id")
	flagSet.StringVar(&f.TransactionID, "transaction", "", "Transaction target id")
	flagSet.BoolVarP(&f.Verbose, "verbose", "v", false, "Log at debug level to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, config.Load); err != nil {
		fmt.Fprintln(os.Stderr, "metricctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, loadConfig func() (*config.Config, error)) error {
	f := &flags{}
	flagSet := pflag.NewFlagSet("metricctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	f.Bind(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() == 0 {
		return errUsage
	}
	format, err := parseFormat(f.Format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := "warn"
	if f.Verbose {
		level = "debug"
	}
	log := logger.New(logger.Config{Level: level, Pretty: true, Output: stderr})

	container, err := di.Wire(cfg, log)
	if err != nil {
		return err
	}
	defer container.Close()

	cmd := &command{container: container, flags: f, out: newPrinter(stdout, format), log: log}
	name, rest := flagSet.Arg(0), flagSet.Args()[1:]
	switch name {
	case "bootstrap":
		return cmd.bootstrap(ctx)
	case "list":
		return cmd.list(ctx)
	case "compute":
		if len(rest) != 1 {
			return fmt.Errorf("compute takes exactly one metric id")
		}
		return cmd.compute(ctx, rest[0])
	case "performance":
		if len(rest) != 1 {
			return fmt.Errorf("performance takes exactly one portfolio id")
		}
		return cmd.performance(ctx, rest[0])
	case "sync-prices":
		return cmd.syncPrices(ctx)
	case "clear-computed":
		return cmd.clearComputed(ctx)
	}
	return fmt.Errorf("unknown command %q: %w", name, errUsage)
}

type command struct {
	container *di.Container
	flags     *flags
	out       *printer
	log       zerolog.Logger
}

func (c *command) bootstrap(ctx context.Context) error {
	n, err := c.container.MetricsService.Bootstrap(ctx)
	if err != nil {
		return err
	}
	return c.out.message("installed %d system metrics", n)
}

func (c *command) list(ctx context.Context) error {
	var scope domain.ScopeType
	if c.flags.Scope != "" {
		parsed, err := domain.ParseScope(strings.ToUpper(c.flags.Scope))
		if err != nil {
			return err
		}
		scope = parsed
	}
	defs, err := c.container.MetricsService.ListActiveMetrics(ctx, scope, c.flags.User)
	if err != nil {
		return err
	}
	return c.out.definitions(defs)
}

func (c *command) compute(ctx context.Context, metricID string) error {
	target, err := metrics.TargetRef{
		PortfolioID:   c.flags.PortfolioID,
		PositionID:    c.flags.PositionID,
		TransactionID: c.flags.TransactionID,
	}.Target()
	if err != nil {
		return err
	}
	result, err := c.container.MetricsService.ComputeValue(ctx, metricID, target, c.flags.User)
	if err != nil {
		return err
	}
	return c.out.results([]namedResult{{Name: metricID, Result: result}})
}

func (c *command) performance(ctx context.Context, portfolioID string) error {
	summary, err := c.container.PerformanceService.Summarize(ctx, portfolioID, c.flags.User)
	if err != nil {
		return err
	}
	return c.out.summary(summary)
}

func (c *command) syncPrices(ctx context.Context) error {
	if !c.container.MarketDataService.Enabled() {
		return fmt.Errorf("no quote provider configured, set ALPHA_VANTAGE_API_KEY")
	}
	res, err := c.container.MarketDataService.SyncPrices(ctx)
	if err != nil {
		return err
	}
	return c.out.message("synced %d, skipped %d, failed %d", res.Synced, res.Skipped, res.Failed)
}

func (c *command) clearComputed(ctx context.Context) error {
	n, err := c.container.MetricsService.ClearComputed(ctx)
	if err != nil {
		return err
	}
	return c.out.message("deleted %d computed values", n)
}
