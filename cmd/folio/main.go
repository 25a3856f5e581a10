package main

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/mtlprog/folio/internal/config"
	"github.com/mtlprog/folio/internal/export"
	"github.com/mtlprog/folio/internal/external"
	"github.com/mtlprog/folio/internal/rebalance"
	"github.com/mtlprog/folio/internal/snapshot"
	"github.com/mtlprog/folio/internal/validation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "folio",
		Usage: "portfolio valuation, rebalancing and analytics",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API with live change notifications and background workers",
				Action: runServe,
			},
			{
				Name:   "migrate",
				Usage:  "apply pending database migrations and exit",
				Action: runMigrate,
			},
			{
				Name:   "quotes",
				Usage:  "fetch market quotes once and reprice the holdings",
				Action: runQuotes,
			},
			{
				Name:   "summary",
				Usage:  "print the valued holdings",
				Action: runSummary,
			},
			{
				Name:      "rebalance",
				Usage:     "print the trade plan toward a target allocation",
				ArgsUsage: "<target-id>",
				Flags:     optionFlags(),
				Action:    runRebalance,
			},
			{
				Name:  "analyze",
				Usage: "print diversification, risk and health scores",
				Flags: append(optionFlags(),
					&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "compare against this target allocation"},
				),
				Action: runAnalyze,
			},
			{
				Name:   "snapshot",
				Usage:  "store today's portfolio snapshot and print it",
				Action: runSnapshot,
			},
			{
				Name:      "export",
				Usage:     "write the trade plan to an XLSX file and/or Google Sheets",
				ArgsUsage: "<target-id>",
				Flags: append(optionFlags(),
					&cli.StringFlag{Name: "xlsx", Usage: "write the workbook to this path"},
					&cli.BoolFlag{Name: "sheets", Usage: "write to the configured spreadsheet"},
				),
				Action: runExport,
			},
		},
	}
}

func optionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "threshold", Usage: "weight difference in points tolerated before trading"},
		&cli.StringFlag{Name: "min-unit", Usage: "smallest tradable quantity step"},
		&cli.StringFlag{Name: "commission", Usage: "commission per unit traded"},
		&cli.BoolFlag{Name: "consider-commission", Usage: "subtract commission from each trade's value"},
		&cli.BoolFlag{Name: "fractional", Usage: "allow fractional quantities"},
		&cli.BoolFlag{Name: "include-untargeted", Usage: "sell holdings the target does not name"},
		&cli.StringFlag{Name: "rounding", Usage: "nearest or down"},
	}
}

// rebalanceOptions applies the command line flags over the configured defaults.
func rebalanceOptions(c *cli.Context, base rebalance.Options) (rebalance.Options, error) {
	opts := base
	decimals := []struct {
		flag string
		dst  *decimal.Decimal
	}{
		{"threshold", &opts.Threshold},
		{"min-unit", &opts.MinimumUnit},
		{"commission", &opts.Commission},
	}
	for _, f := range decimals {
		if !c.IsSet(f.flag) {
			continue
		}
		v, err := decimal.NewFromString(c.String(f.flag))
		if err != nil {
			return opts, fmt.Errorf("--%s: %w", f.flag, err)
		}
		*f.dst = v
	}
	if c.IsSet("consider-commission") {
		opts.ConsiderCommission = c.Bool("consider-commission")
	}
	if c.IsSet("fractional") {
		opts.AllowFractional = c.Bool("fractional")
	}
	if c.IsSet("include-untargeted") {
		opts.IncludeUntargeted = c.Bool("include-untargeted")
	}
	if c.IsSet("rounding") {
		opts.Rounding = rebalance.ParseRounding(c.String("rounding"))
	}
	if err := validation.ValidateOptions(opts); err != nil {
		return opts, err
	}
	return opts, nil
}

func runMigrate(c *cli.Context) error {
	cfg := config.Load()
	pool, err := connect(c.Context, cfg)
	if err != nil {
		return err
	}
	pool.Close()
	return nil
}

func runQuotes(c *cli.Context) error {
	cfg := config.Load()
	if cfg.QuotesAPIKey == "" {
		return cli.Exit("QUOTES_API_KEY is required", 2)
	}
	core, pool, cleanup, err := openApp(c.Context, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := external.NewService(quoteClient(cfg), external.NewPgQuoteRepository(pool), core.Holdings, core.Targets).Fetch(c.Context); err != nil {
		return err
	}
	return printJSON(core.Summary())
}

func runSummary(c *cli.Context) error {
	cfg := config.Load()
	core, _, cleanup, err := openApp(c.Context, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()
	return printJSON(core.Summary())
}

func runRebalance(c *cli.Context) error {
	targetID := c.Args().First()
	if targetID == "" {
		return cli.Exit("target id is required", 2)
	}
	cfg := config.Load()
	opts, err := rebalanceOptions(c, cfg.Rebalance)
	if err != nil {
		return err
	}
	core, _, cleanup, err := openApp(c.Context, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := core.Rebalance(targetID, core.WithQuotes(c.Context, opts))
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runAnalyze(c *cli.Context) error {
	cfg := config.Load()
	opts, err := rebalanceOptions(c, cfg.Rebalance)
	if err != nil {
		return err
	}
	core, _, cleanup, err := openApp(c.Context, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := core.Analyze(c.String("target"), core.WithQuotes(c.Context, opts))
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runSnapshot(c *cli.Context) error {
	cfg := config.Load()
	core, pool, cleanup, err := openApp(c.Context, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := snapshot.NewService(core, snapshot.NewPgRepository(pool), cfg.OwnerID, cfg.ExportTargetID, cfg.Rebalance)
	data, err := svc.Generate(c.Context, time.Now())
	if err != nil {
		return err
	}
	return printJSON(data)
}

func runExport(c *cli.Context) error {
	targetID := c.Args().First()
	if targetID == "" {
		return cli.Exit("target id is required", 2)
	}
	if c.String("xlsx") == "" && !c.Bool("sheets") {
		return cli.Exit("choose at least one of --xlsx or --sheets", 2)
	}
	cfg := config.Load()
	opts, err := rebalanceOptions(c, cfg.Rebalance)
	if err != nil {
		return err
	}
	core, _, cleanup, err := openApp(c.Context, cfg, false)
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := core.Plan(targetID, core.WithQuotes(c.Context, opts))
	if err != nil {
		return err
	}

	var writers []export.Writer
	if path := c.String("xlsx"); path != "" {
		writers = append(writers, export.NewXLSXWriter(path))
	}
	if c.Bool("sheets") {
		sw, err := sheetsWriter(c.Context, cfg)
		if err != nil {
			return err
		}
		writers = append(writers, sw)
	}
	return export.NewService(writers...).Export(c.Context, plan)
}

func sheetsWriter(ctx context.Context, cfg config.Config) (*export.SheetsWriter, error) {
	if cfg.SheetsSpreadsheetID == "" || cfg.GoogleCredentialsJSON == "" {
		return nil, errors.New("SHEETS_SPREADSHEET_ID and GOOGLE_CREDENTIALS_JSON are required for Sheets export")
	}
	return export.NewSheetsWriter(ctx, cfg.SheetsSpreadsheetID, cfg.GoogleCredentialsJSON)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
