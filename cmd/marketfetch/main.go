// Market data fetch CLI
// This application acquires OHLCV price series for currencies and explicit
// symbols through a tiered fallback pipeline: in-memory cache, the primary
// chart API with interval escalation, a widened daily window, optional
// alternate sources, and an optional synthetic series.
//
// Usage:
//
//	marketfetch fetch --symbol EUR --hours 24
//	marketfetch fetch --symbol BTC-USD --start 2024-05-01 --end 2024-05-03
//	marketfetch resolve --symbol EUR
//	marketfetch currencies
//	marketfetch prune
//
// For detailed help on any command, use: marketfetch <command> --help
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketfetch/internal/archive"
	"marketfetch/internal/cache"
	"marketfetch/internal/config"
	"marketfetch/internal/logger"
	"marketfetch/internal/models"
	"marketfetch/internal/pipeline"
	"marketfetch/internal/provider"
	"marketfetch/internal/ratelimit"
	"marketfetch/internal/symbols"
)

const (
	Version = "1.0.0"
	AppName = "marketfetch"
)

// Exit codes following standard conventions
const (
	ExitSuccess     = 0
	ExitUsageError  = 1
	ExitConfigError = 2
	ExitDataError   = 4
)

// CLI wires configuration, logging, the fetch engine, and the optional
// on-disk archive together for the command handlers.
type CLI struct {
	config    *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	engine    *pipeline.Engine
	archive   archive.SeriesArchive
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(ExitUsageError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "--version", "-v":
		fmt.Printf("%s version %s\n", AppName, Version)
		return
	case "--help", "-h", "help":
		printUsage()
		return
	}

	cli := &CLI{}
	if err := cli.initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		os.Exit(ExitConfigError)
	}
	defer cli.shutdown()

	var err error
	switch command {
	case "fetch":
		err = cli.handleFetch(ctx, args)
	case "resolve":
		err = cli.handleResolve(args)
	case "currencies":
		err = cli.handleCurrencies()
	case "prune":
		err = cli.handlePrune(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(ExitUsageError)
	}
	if err != nil {
		cli.logger.Error("command failed", "command", command, "error", err)
		cli.shutdown()
		os.Exit(ExitDataError)
	}
}

// initialize loads configuration and builds the engine and its collaborators.
func (cli *CLI) initialize(ctx context.Context) error {
	// Optional; a missing .env file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("MARKETFETCH_CONFIG"))
	if err != nil {
		return err
	}
	cli.config = cfg

	log, closer, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	cli.logger = log
	cli.logCloser = closer

	chart := provider.NewChartClient(cfg.Providers.ChartBaseURL, log)
	var fx pipeline.FXFetcher
	if cfg.Engine.EnableSecondaryProvider {
		fx = provider.NewFXClient(cfg.Providers.FXBaseURL, cfg.Providers.FXAPIKey, log)
	}

	cli.engine = pipeline.New(
		cache.New(cfg.CacheTTL(), log),
		ratelimit.New(cfg.MinRequestInterval(), log),
		chart,
		fx,
		pipeline.Options{
			AllowMockData:           cfg.Engine.AllowMockData,
			EnableSecondaryProvider: cfg.Engine.EnableSecondaryProvider,
			EnableAlternateSymbols:  cfg.Engine.EnableAlternateSymbols,
		},
		log,
	)

	if cfg.Archive.Path != "" {
		a, err := archive.OpenDuckDB(ctx, cfg.Archive.Path, log)
		if err != nil {
			return fmt.Errorf("failed to open series archive: %w", err)
		}
		cli.archive = a
	}

	return nil
}

func (cli *CLI) shutdown() {
	if cli.archive != nil {
		if err := cli.archive.Close(); err != nil {
			cli.logger.Warn("failed to close archive", "error", err)
		}
		cli.archive = nil
	}
	if cli.logCloser != nil {
		cli.logCloser.Close()
		cli.logCloser = nil
	}
}

// handleFetch acquires and prints a price series. The window comes either
// from --hours counting back from now, or from explicit --start/--end dates.
func (cli *CLI) handleFetch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "currency code or explicit symbol (required)")
	hours := fs.Int("hours", 0, "fetch the last N hours")
	startStr := fs.String("start", "", "window start, YYYY-MM-DD")
	endStr := fs.String("end", "", "window end, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *symbol == "" {
		return fmt.Errorf("--symbol is required")
	}

	start, end, err := resolveWindow(*hours, *startStr, *endStr)
	if err != nil {
		return err
	}

	series, err := cli.engine.Fetch(ctx, *symbol, start, end)
	if err != nil {
		return err
	}

	if series.IsEmpty() {
		fmt.Printf("No data available for %s between %s and %s\n",
			*symbol, start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))
		return nil
	}

	if cli.archive != nil {
		pair := cli.engine.ResolveSymbol(*symbol)[0]
		if err := cli.archive.Store(ctx, pair, series); err != nil {
			cli.logger.Warn("failed to archive series", "symbol", pair, "error", err)
		}
	}

	cli.printSeries(*symbol, series)

	snap := cli.engine.Metrics()
	cli.logger.Info("fetch completed",
		"bars", len(series),
		"upstream_calls", snap.UpstreamCalls,
		"cache_hits", snap.CacheHits,
		"throttle_events", snap.ThrottleEvents,
		"synthetic", snap.SyntheticServes > 0)
	return nil
}

// handleResolve prints the candidate pairs a symbol or currency expands to.
func (cli *CLI) handleResolve(args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	symbol := fs.String("symbol", "", "currency code or explicit symbol (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" {
		return fmt.Errorf("--symbol is required")
	}

	for i, pair := range cli.engine.ResolveSymbol(*symbol) {
		role := "primary"
		if i > 0 {
			role = "fallback"
		}
		fmt.Printf("%-12s %-8s %s\n", pair, role, symbols.PrettyName(pair))
	}
	return nil
}

// handleCurrencies lists the currency codes with a known pair mapping.
func (cli *CLI) handleCurrencies() error {
	for _, code := range symbols.Currencies() {
		fmt.Printf("%-6s %s\n", code, symbols.PrettyName(symbols.PrimaryPair(code)))
	}
	return nil
}

// handlePrune removes archived bars older than the retention window.
func (cli *CLI) handlePrune(ctx context.Context) error {
	if cli.archive == nil {
		return fmt.Errorf("no archive configured, set ARCHIVE_PATH")
	}

	cutoff := time.Now().UTC().Add(-cli.config.ArchiveRetention())
	removed, err := cli.archive.Prune(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Pruned %d archived bars older than %s\n", removed, cutoff.Format(time.RFC3339))
	return nil
}

// printSeries renders bars in the configured display timezone.
func (cli *CLI) printSeries(symbol string, series models.PriceSeries) {
	loc := cli.config.DisplayLocation()

	fmt.Printf("%s (%d bars, times in %s)\n", symbol, len(series), loc)
	fmt.Printf("%-17s %10s %10s %10s %10s %12s\n", "time", "open", "high", "low", "close", "volume")
	for _, bar := range series {
		fmt.Printf("%-17s %10s %10s %10s %10s %12s\n",
			bar.Timestamp.In(loc).Format("2006-01-02 15:04"),
			bar.Open.StringFixed(5),
			bar.High.StringFixed(5),
			bar.Low.StringFixed(5),
			bar.Close.StringFixed(5),
			bar.Volume.StringFixed(0))
	}
}

// resolveWindow turns CLI flags into a concrete [start, end] range.
func resolveWindow(hours int, startStr, endStr string) (time.Time, time.Time, error) {
	if hours > 0 {
		if startStr != "" || endStr != "" {
			return time.Time{}, time.Time{}, fmt.Errorf("--hours cannot be combined with --start/--end")
		}
		end := time.Now().UTC()
		return end.Add(-time.Duration(hours) * time.Hour), end, nil
	}

	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("specify either --hours or both --start and --end")
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date, use YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date, use YYYY-MM-DD: %w", err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start date cannot be after end date")
	}
	return start, end, nil
}

func printUsage() {
	fmt.Printf(`%s - resilient OHLCV market data fetcher

Usage:
  %s <command> [flags]

Commands:
  fetch       Acquire a price series for a currency or symbol
  resolve     Show the candidate pairs a symbol expands to
  currencies  List supported currency codes
  prune       Remove archived bars past the retention window

Flags:
  --version   Print version information
  --help      Print this help

Examples:
  %s fetch --symbol EUR --hours 24
  %s fetch --symbol BTC-USD --start 2024-05-01 --end 2024-05-03
  %s resolve --symbol XAU
`, AppName, AppName, AppName, AppName, AppName)
}
