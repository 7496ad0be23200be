package exchangerate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/simaogato/networth-backend/internal/domain"
)

// DefaultFetchTimeout bounds a single provider call
const DefaultFetchTimeout = 5 * time.Second

// Source tells where a resolved rate came from
type Source string

const (
	SourceIdentity Source = "identity"
	SourceCache    Source = "cache"
	SourceProvider Source = "provider"
	SourceStale    Source = "stale"
	SourceDefault  Source = "default"
)

// Quote is a resolved rate: 1 unit of From = Rate units of To
type Quote struct {
	From     domain.Currency
	To       domain.Currency
	Date     time.Time // requested day
	RateDate time.Time // day the rate was observed; earlier than Date when stale
	Rate     decimal.Decimal
	Source   Source
}

// Degraded reports whether the rate is a fallback rather than a rate for the requested day
func (q Quote) Degraded() bool {
	return q.Source == SourceStale || q.Source == SourceDefault
}

// RateResolver is the part of the resolver the valuation services depend on
type RateResolver interface {
	Resolve(ctx context.Context, date time.Time, from, to domain.Currency) (Quote, error)
}

// Provider fetches a live rate from an external source
type Provider interface {
	Name() string
	Fetch(ctx context.Context, date time.Time, from, to domain.Currency) (decimal.Decimal, error)
}

// Resolver resolves exchange rates through the cache, the provider and the fallbacks
type Resolver struct {
	repo         domain.ExchangeRateRepository
	provider     Provider
	fetchTimeout time.Duration
	readCache    *cache.Cache
	logger       *zap.Logger
	group        singleflight.Group
}

// Option configures a Resolver
type Option func(*Resolver)

// WithProvider sets the live rate source; without one the resolver only uses stored rates
func WithProvider(p Provider) Option {
	return func(r *Resolver) { r.provider = p }
}

// WithFetchTimeout bounds each provider call
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithReadCache keeps exact hits in process memory in front of the store
func WithReadCache(c *cache.Cache) Option {
	return func(r *Resolver) { r.readCache = c }
}

// WithLogger sets the logger used for degraded-rate warnings
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a new Resolver over the exchange-rate cache
func NewResolver(repo domain.ExchangeRateRepository, opts ...Option) *Resolver {
	r := &Resolver{
		repo:         repo,
		fetchTimeout: DefaultFetchTimeout,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the rate converting from into to on date.
// Order: identity, cached rate for the day, provider, most recent earlier
// cached rate, and finally 1. Provider failures never surface as errors;
// only a failing store lookup does.
func (r *Resolver) Resolve(ctx context.Context, date time.Time, from, to domain.Currency) (Quote, error) {
	day := domain.Day(date)
	q := Quote{From: from, To: to, Date: day, RateDate: day}

	if from == to {
		q.Rate = decimal.NewFromInt(1)
		q.Source = SourceIdentity
		return q, nil
	}

	key := cacheKey(day, from, to)
	if r.readCache != nil {
		if v, ok := r.readCache.Get(key); ok {
			q.Rate = v.(decimal.Decimal)
			q.Source = SourceCache
			return q, nil
		}
	}

	cached, err := r.repo.Get(ctx, day, from, to)
	switch {
	case err == nil:
		r.remember(key, cached.Rate)
		q.Rate = cached.Rate
		q.Source = SourceCache
		return q, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Quote{}, fmt.Errorf("failed to look up exchange rate: %w", err)
	}

	if rate, ok := r.fetch(ctx, day, from, to); ok {
		r.remember(key, rate)
		q.Rate = rate
		q.Source = SourceProvider
		return q, nil
	}

	stale, err := r.repo.LatestOnOrBefore(ctx, from, to, day)
	switch {
	case err == nil:
		q.Rate = stale.Rate
		q.RateDate = stale.Date
		q.Source = SourceStale
		r.warn("using stale exchange rate", q)
		return q, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Quote{}, fmt.Errorf("failed to look up stale exchange rate: %w", err)
	}

	q.Rate = decimal.NewFromInt(1)
	q.Source = SourceDefault
	r.warn("no exchange rate available, defaulting to 1", q)
	return q, nil
}

// Convert converts amount from one currency into another on date
func (r *Resolver) Convert(ctx context.Context, amount decimal.Decimal, from, to domain.Currency, date time.Time) (decimal.Decimal, Quote, error) {
	q, err := r.Resolve(ctx, date, from, to)
	if err != nil {
		return decimal.Zero, Quote{}, err
	}
	return amount.Mul(q.Rate), q, nil
}

// ToEUR converts amount into the reporting currency
func (r *Resolver) ToEUR(ctx context.Context, amount decimal.Decimal, from domain.Currency, date time.Time) (decimal.Decimal, Quote, error) {
	return r.Convert(ctx, amount, from, domain.EUR, date)
}

// LatestRates returns the most recent cached rate of every pair
func (r *Resolver) LatestRates(ctx context.Context) ([]*domain.ExchangeRate, error) {
	rates, err := r.repo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest exchange rates: %w", err)
	}
	return rates, nil
}

// fetch asks the provider for a rate and persists it. Concurrent requests for
// the same key share one provider call, bounded only by the fetch timeout so
// one caller going away does not fail the others.
func (r *Resolver) fetch(ctx context.Context, day time.Time, from, to domain.Currency) (decimal.Decimal, bool) {
	if r.provider == nil {
		return decimal.Zero, false
	}

	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(cacheKey(day, from, to), func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(shared, r.fetchTimeout)
		defer cancel()

		rate, err := r.provider.Fetch(fetchCtx, day, from, to)
		if err != nil {
			return nil, err
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("provider returned non-positive rate %s", rate)
		}

		// The rate is already usable, so a failed write only costs a future refetch
		record := &domain.ExchangeRate{
			ID:     uuid.New(),
			Date:   day,
			From:   from,
			To:     to,
			Rate:   rate,
			Source: r.provider.Name(),
		}
		if err := r.repo.Save(shared, record); err != nil {
			r.logger.Error("failed to cache exchange rate",
				zap.String("from", string(from)),
				zap.String("to", string(to)),
				zap.String("date", domain.FormatDay(day)),
				zap.Error(err))
		}
		return rate, nil
	})
	if err != nil {
		r.logger.Warn("exchange rate fetch failed",
			zap.String("provider", r.provider.Name()),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("date", domain.FormatDay(day)),
			zap.Error(err))
		return decimal.Zero, false
	}
	return v.(decimal.Decimal), true
}

func (r *Resolver) remember(key string, rate decimal.Decimal) {
	if r.readCache != nil {
		r.readCache.SetDefault(key, rate)
	}
}

func (r *Resolver) warn(msg string, q Quote) {
	r.logger.Warn(msg,
		zap.String("from", string(q.From)),
		zap.String("to", string(q.To)),
		zap.String("date", domain.FormatDay(q.Date)),
		zap.String("rate_date", domain.FormatDay(q.RateDate)),
		zap.String("source", string(q.Source)),
		zap.String("rate", q.Rate.String()))
}

func cacheKey(day time.Time, from, to domain.Currency) string {
	return domain.FormatDay(day) + ":" + string(from) + ":" + string(to)
}
