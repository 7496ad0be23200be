package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/bootstrap"
	"github.com/simaogato/networth-backend/internal/config"
	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/logger"
	"github.com/simaogato/networth-backend/internal/usecase/seeder"
)

var commands = []subcommands.Command{
	&schemaCmd{},
	&rateCmd{},
	&syncRatesCmd{},
	&seedRatesCmd{},
	&resnapshotCmd{},
}

// env is what every command needs: configuration, a logger and the store
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	store    domain.Store
	services *bootstrap.Services
	close    func() error
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	table, err := bootstrap.LoadRateTable(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	resolver := bootstrap.NewResolver(cfg, store.Repos().ExchangeRates, table, zl)
	return &env{
		cfg:      cfg,
		log:      zl,
		store:    store,
		services: bootstrap.NewServices(store, resolver, zl),
		close:    closeStore,
	}, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

// parseDayOrToday accepts YYYY-MM-DD; empty means today (UTC)
func parseDayOrToday(s string) (time.Time, error) {
	if s == "" {
		return domain.Day(time.Now()), nil
	}
	return domain.ParseDay(s)
}

func parseCurrencies(s string) ([]domain.Currency, error) {
	var out []domain.Currency
	for _, code := range strings.Split(s, ",") {
		if strings.TrimSpace(code) == "" {
			continue
		}
		c, err := domain.ParseCurrency(code)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type schemaCmd struct{}

func (*schemaCmd) Name() string     { return "schema" }
func (*schemaCmd) Synopsis() string { return "create missing tables and indexes" }
func (*schemaCmd) Usage() string {
	return `networthctl schema

  Applies the idempotent schema to the database selected by STORE_DRIVER.
`
}
func (*schemaCmd) SetFlags(*flag.FlagSet) {}

func (*schemaCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		return fail(err)
	}
	db, err := bootstrap.OpenDB(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	defer db.Close()
	fmt.Printf("schema applied (%s)\n", db.Dialect())
	return subcommands.ExitSuccess
}

type rateCmd struct {
	date   string
	amount string
}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "resolve an exchange rate and show where it came from" }
func (*rateCmd) Usage() string {
	return `networthctl rate [-d <date>] [-a <amount>] <from> <to>

  Resolves the rate through the cache, the provider and the fallbacks.
`
}

func (c *rateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "day of the rate, YYYY-MM-DD (defaults to today)")
	f.StringVar(&c.amount, "a", "1", "amount to convert")
}

func (c *rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	from, err := domain.ParseCurrency(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	to, err := domain.ParseCurrency(f.Arg(1))
	if err != nil {
		return fail(err)
	}
	day, err := parseDayOrToday(c.date)
	if err != nil {
		return fail(err)
	}
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		return fail(fmt.Errorf("invalid amount: %w", err))
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	converted, quote, err := e.services.Rates.Convert(ctx, amount, from, to, day)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s %s = %s %s (rate %s, %s, observed %s)\n",
		amount, from, converted.StringFixed(2), to, quote.Rate, quote.Source, domain.FormatDay(quote.RateDate))
	return subcommands.ExitSuccess
}

type syncRatesCmd struct {
	start      string
	end        string
	currencies string
}

func (*syncRatesCmd) Name() string { return "sync-rates" }
func (*syncRatesCmd) Synopsis() string {
	return "resolve and cache every currency pair over a date range"
}
func (*syncRatesCmd) Usage() string {
	return `networthctl sync-rates -c EUR,USD,GBP [-s <start>] [-e <end>]

  Resolves every ordered pair of the currencies for each day in the range.
  Failures are counted, never fatal.
`
}

func (c *syncRatesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "s", "", "first day, YYYY-MM-DD (defaults to the end day)")
	f.StringVar(&c.end, "e", "", "last day, YYYY-MM-DD (defaults to today)")
	f.StringVar(&c.currencies, "c", "EUR,USD,GBP", "comma separated currency codes")
}

func (c *syncRatesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	currencies, err := parseCurrencies(c.currencies)
	if err != nil {
		return fail(err)
	}
	end, err := parseDayOrToday(c.end)
	if err != nil {
		return fail(err)
	}
	start := end
	if c.start != "" {
		if start, err = domain.ParseDay(c.start); err != nil {
			return fail(err)
		}
	}
	if start.After(end) {
		return fail(fmt.Errorf("start %s is after end %s", domain.FormatDay(start), domain.FormatDay(end)))
	}

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	report := e.services.Rates.SyncRates(ctx, dates, currencies)
	fmt.Printf("resolved %d, degraded %d, failed %d\n", report.Resolved, report.Degraded, report.Failed)
	if report.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type seedRatesCmd struct{}

func (*seedRatesCmd) Name() string     { return "seed-rates" }
func (*seedRatesCmd) Synopsis() string { return "load the RATE_TABLE_PATH table into the rate cache" }
func (*seedRatesCmd) Usage() string {
	return `networthctl seed-rates

  Stores every rate of the YAML table dated with the table's date.
  Running it twice is harmless.
`
}
func (*seedRatesCmd) SetFlags(*flag.FlagSet) {}

func (*seedRatesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	table, err := bootstrap.LoadRateTable(e.cfg)
	if err != nil {
		return fail(err)
	}
	if table == nil {
		return fail(fmt.Errorf("RATE_TABLE_PATH is not set"))
	}
	n, err := seeder.NewRateSeeder(e.store.Repos().ExchangeRates, table).Seed(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("seeded %d rates dated %s\n", n, domain.FormatDay(table.Date))
	return subcommands.ExitSuccess
}

type resnapshotCmd struct {
	owner string
	date  string
}

func (*resnapshotCmd) Name() string     { return "resnapshot" }
func (*resnapshotCmd) Synopsis() string { return "carry every account's latest value forward to a day" }
func (*resnapshotCmd) Usage() string {
	return `networthctl resnapshot -o <owner> [-d <date>]

  Revalues each active account's most recent snapshot at the day's rate.
  Brokerage accounts are re-split from their latest entry.
`
}

func (c *resnapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "o", "", "owner identity")
	f.StringVar(&c.date, "d", "", "target day, YYYY-MM-DD (defaults to today)")
}

func (c *resnapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	day, err := parseDayOrToday(c.date)
	if err != nil {
		return fail(err)
	}

	e, err := openEnv(ctx)
	if err != nil {
		return fail(err)
	}
	defer e.close()

	report, err := e.services.Generator.Run(ctx, c.owner, day)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("%s: carried %d, split %d, skipped %d\n", domain.FormatDay(day), report.Carried, report.Split, report.Skipped)
	return subcommands.ExitSuccess
}
