// Package bootstrap wires configuration into stores and services. It is shared
// by the server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/adapter/repository/memory"
	"github.com/simaogato/networth-backend/internal/adapter/repository/sqlstore"
	"github.com/simaogato/networth-backend/internal/config"
	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/brokerage"
	"github.com/simaogato/networth-backend/internal/usecase/catalog"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
	"github.com/simaogato/networth-backend/internal/usecase/portfolio"
	"github.com/simaogato/networth-backend/internal/usecase/resnapshot"
	"github.com/simaogato/networth-backend/internal/usecase/snapshot"
)

// OpenDB connects to the configured SQL database and applies the schema
func OpenDB(ctx context.Context, cfg *config.Config) (*sqlstore.DB, error) {
	var (
		db  *sqlstore.DB
		err error
	)
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err = sqlstore.NewPostgresDB(cfg.DBConnStr)
	case config.DriverSQLite:
		db, err = sqlstore.NewSQLiteDB(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("store driver %q has no database", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenStore returns the configured store and a function releasing it
func OpenStore(ctx context.Context, cfg *config.Config) (domain.Store, func() error, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return memory.NewStore(), func() error { return nil }, nil
	}

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return sqlstore.NewStore(db), db.Close, nil
}

// LoadRateTable loads the YAML rate table, or returns nil when none is configured
func LoadRateTable(cfg *config.Config) (*exchangerate.RateTable, error) {
	if cfg.RateTablePath == "" {
		return nil, nil
	}
	return exchangerate.LoadRateTable(cfg.RateTablePath)
}

// NewResolver builds the exchange-rate resolver. A configured HTTP API wins over
// the static table; with neither, only cached rates and the fallbacks are used.
func NewResolver(cfg *config.Config, repo domain.ExchangeRateRepository, table *exchangerate.RateTable, logger *zap.Logger) *exchangerate.Resolver {
	opts := []exchangerate.Option{
		exchangerate.WithLogger(logger),
		exchangerate.WithFetchTimeout(cfg.ExchangeRateTimeout),
		exchangerate.WithReadCache(cache.New(cfg.RateCacheTTL, 2*cfg.RateCacheTTL)),
	}

	switch {
	case cfg.ExchangeRateAPIURL != "":
		opts = append(opts, exchangerate.WithProvider(
			exchangerate.NewHTTPProvider(cfg.ExchangeRateAPIURL, cfg.ExchangeRateAPIKey, cfg.ExchangeRateTimeout)))
	case table != nil:
		opts = append(opts, exchangerate.WithProvider(exchangerate.NewStaticProvider(table)))
	}
	return exchangerate.NewResolver(repo, opts...)
}

// Services bundles every use case over one store
type Services struct {
	Rates     *exchangerate.Resolver
	Catalog   *catalog.CatalogService
	Snapshots *snapshot.SnapshotService
	Brokerage *brokerage.BrokerageService
	Portfolio *portfolio.PortfolioService
	Generator *resnapshot.Generator
}

// NewServices creates the use-case services
func NewServices(store domain.Store, rates *exchangerate.Resolver, logger *zap.Logger) *Services {
	snapshots := snapshot.NewSnapshotService(store, rates, logger)
	brokerageService := brokerage.NewBrokerageService(store, rates, logger)
	return &Services{
		Rates:     rates,
		Catalog:   catalog.NewCatalogService(store, logger),
		Snapshots: snapshots,
		Brokerage: brokerageService,
		Portfolio: portfolio.NewPortfolioService(store, logger),
		Generator: resnapshot.NewGenerator(store, snapshots, brokerageService, logger),
	}
}
