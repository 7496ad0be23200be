package exchangerate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/networth-backend/internal/domain"
)

// MockExchangeRateRepository is a mock implementation of ExchangeRateRepository for testing
type MockExchangeRateRepository struct {
	mock.Mock
}

func (m *MockExchangeRateRepository) Get(ctx context.Context, date time.Time, from, to domain.Currency) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, date, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}

func (m *MockExchangeRateRepository) Save(ctx context.Context, rate *domain.ExchangeRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockExchangeRateRepository) LatestOnOrBefore(ctx context.Context, from, to domain.Currency, date time.Time) (*domain.ExchangeRate, error) {
	args := m.Called(ctx, from, to, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExchangeRate), args.Error(1)
}

func (m *MockExchangeRateRepository) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ExchangeRate), args.Error(1)
}

// MockProvider is a mock implementation of Provider for testing
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Fetch(ctx context.Context, date time.Time, from, to domain.Currency) (decimal.Decimal, error) {
	args := m.Called(ctx, date, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

var jan15 = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

func TestResolve_Identity(t *testing.T) {
	repo := new(MockExchangeRateRepository)
	resolver := NewResolver(repo)

	q, err := resolver.Resolve(context.Background(), jan15, "EUR", "EUR")

	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, SourceIdentity, q.Source)
	assert.False(t, q.Degraded())
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolve_CachedRow(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	provider := new(MockProvider)
	resolver := NewResolver(repo, WithProvider(provider))

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).
		Return(&domain.ExchangeRate{Date: jan15, From: "GBP", To: "EUR", Rate: decimal.RequireFromString("1.16")}, nil)

	q, err := resolver.Resolve(ctx, jan15.Add(15*time.Hour), "GBP", "EUR")

	require.NoError(t, err)
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("1.16")))
	assert.Equal(t, SourceCache, q.Source)
	assert.Equal(t, jan15, q.Date)
	provider.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestResolve_ProviderPersistsRate(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	provider := new(MockProvider)
	resolver := NewResolver(repo, WithProvider(provider))

	repo.On("Get", ctx, jan15, domain.Currency("SEK"), domain.EUR).Return(nil, domain.ErrNotFound)
	provider.On("Fetch", mock.Anything, jan15, domain.Currency("SEK"), domain.EUR).
		Return(decimal.RequireFromString("0.087"), nil)
	repo.On("Save", mock.Anything, mock.MatchedBy(func(r *domain.ExchangeRate) bool {
		return r.From == "SEK" && r.To == domain.EUR && r.Date.Equal(jan15) &&
			r.Rate.Equal(decimal.RequireFromString("0.087")) && r.Source == "mock"
	})).Return(nil)

	q, err := resolver.Resolve(ctx, jan15, "SEK", "EUR")

	require.NoError(t, err)
	assert.Equal(t, SourceProvider, q.Source)
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("0.087")))
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestResolve_PersistFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	provider := new(MockProvider)
	resolver := NewResolver(repo, WithProvider(provider))

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).Return(nil, domain.ErrNotFound)
	provider.On("Fetch", mock.Anything, jan15, domain.Currency("GBP"), domain.EUR).
		Return(decimal.RequireFromString("1.17"), nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(&domain.StorageError{Op: "save rate", Err: errors.New("disk full")})

	q, err := resolver.Resolve(ctx, jan15, "GBP", "EUR")

	require.NoError(t, err)
	assert.Equal(t, SourceProvider, q.Source)
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("1.17")))
}

func TestResolve_StaleFallback(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	provider := new(MockProvider)
	resolver := NewResolver(repo, WithProvider(provider))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).Return(nil, domain.ErrNotFound)
	provider.On("Fetch", mock.Anything, jan15, domain.Currency("GBP"), domain.EUR).
		Return(decimal.Zero, errors.New("service unavailable"))
	repo.On("LatestOnOrBefore", ctx, domain.Currency("GBP"), domain.EUR, jan15).
		Return(&domain.ExchangeRate{Date: jan10, From: "GBP", To: "EUR", Rate: decimal.RequireFromString("1.15")}, nil)

	q, err := resolver.Resolve(ctx, jan15, "GBP", "EUR")

	require.NoError(t, err)
	assert.Equal(t, SourceStale, q.Source)
	assert.True(t, q.Degraded())
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("1.15")))
	assert.Equal(t, jan10, q.RateDate)
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestResolve_DefaultWhenNothingKnown(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	resolver := NewResolver(repo)

	repo.On("Get", ctx, jan15, domain.Currency("JPY"), domain.EUR).Return(nil, domain.ErrNotFound)
	repo.On("LatestOnOrBefore", ctx, domain.Currency("JPY"), domain.EUR, jan15).Return(nil, domain.ErrNotFound)

	q, err := resolver.Resolve(ctx, jan15, "JPY", "EUR")

	require.NoError(t, err)
	assert.Equal(t, SourceDefault, q.Source)
	assert.True(t, q.Degraded())
	assert.True(t, q.Rate.Equal(decimal.NewFromInt(1)))
}

func TestResolve_FetchTimeoutFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	provider := new(MockProvider)
	resolver := NewResolver(repo, WithProvider(provider), WithFetchTimeout(20*time.Millisecond))

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).Return(nil, domain.ErrNotFound)
	provider.On("Fetch", mock.Anything, jan15, domain.Currency("GBP"), domain.EUR).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(decimal.Zero, context.DeadlineExceeded)
	repo.On("LatestOnOrBefore", ctx, domain.Currency("GBP"), domain.EUR, jan15).Return(nil, domain.ErrNotFound)

	start := time.Now()
	q, err := resolver.Resolve(ctx, jan15, "GBP", "EUR")

	require.NoError(t, err)
	assert.Equal(t, SourceDefault, q.Source)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolve_StorageErrorPropagates(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	resolver := NewResolver(repo)

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).
		Return(nil, &domain.StorageError{Op: "get rate", Err: errors.New("connection refused")})

	_, err := resolver.Resolve(ctx, jan15, "GBP", "EUR")

	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestResolve_ReadCacheServesRepeatedLookups(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	resolver := NewResolver(repo, WithReadCache(cache.New(time.Minute, time.Minute)))

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).
		Return(&domain.ExchangeRate{Rate: decimal.RequireFromString("1.16")}, nil).Once()

	for i := 0; i < 3; i++ {
		q, err := resolver.Resolve(ctx, jan15, "GBP", "EUR")
		require.NoError(t, err)
		assert.Equal(t, SourceCache, q.Source)
	}
	repo.AssertNumberOfCalls(t, "Get", 1)
}

// countingProvider blocks until released so concurrent lookups overlap
type countingProvider struct {
	calls   atomic.Int32
	release chan struct{}
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Fetch(ctx context.Context, _ time.Time, _, _ domain.Currency) (decimal.Decimal, error) {
	p.calls.Add(1)
	select {
	case <-p.release:
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
	return decimal.RequireFromString("1.16"), nil
}

func TestResolve_ConcurrentFetchesAreCollapsed(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	provider := &countingProvider{release: make(chan struct{})}
	resolver := NewResolver(repo, WithProvider(provider))

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).Return(nil, domain.ErrNotFound)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	results := make([]Quote, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q, err := resolver.Resolve(ctx, jan15, "GBP", "EUR")
			assert.NoError(t, err)
			results[i] = q
		}(i)
	}

	time.Sleep(100 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	assert.Equal(t, int32(1), provider.calls.Load())
	repo.AssertNumberOfCalls(t, "Save", 1)
	for _, q := range results {
		assert.True(t, q.Rate.Equal(decimal.RequireFromString("1.16")))
	}
}

func TestResolve_SharedFetchSurvivesCallerCancel(t *testing.T) {
	repo := new(MockExchangeRateRepository)
	provider := &countingProvider{release: make(chan struct{})}
	resolver := NewResolver(repo, WithProvider(provider), WithFetchTimeout(5*time.Second))

	repo.On("Get", mock.Anything, jan15, domain.Currency("GBP"), domain.EUR).Return(nil, domain.ErrNotFound)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)
	repo.On("LatestOnOrBefore", mock.Anything, domain.Currency("GBP"), domain.EUR, jan15).Return(nil, domain.ErrNotFound)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan Quote, 1)
	go func() {
		q, _ := resolver.Resolve(firstCtx, jan15, "GBP", "EUR")
		first <- q
	}()
	require.Eventually(t, func() bool { return provider.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan Quote, 1)
	go func() {
		q, err := resolver.Resolve(context.Background(), jan15, "GBP", "EUR")
		assert.NoError(t, err)
		second <- q
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	time.Sleep(50 * time.Millisecond)
	close(provider.release)

	q := <-second
	assert.Equal(t, SourceProvider, q.Source)
	assert.True(t, q.Rate.Equal(decimal.RequireFromString("1.16")))
	<-first
}

func TestConvert(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	resolver := NewResolver(repo)

	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).
		Return(&domain.ExchangeRate{Rate: decimal.RequireFromString("1.16")}, nil)

	value, q, err := resolver.ToEUR(ctx, decimal.NewFromInt(1000), "GBP", jan15)

	require.NoError(t, err)
	assert.True(t, value.Equal(decimal.NewFromInt(1160)))
	assert.Equal(t, SourceCache, q.Source)
}

func TestSyncRates_CountsOutcomes(t *testing.T) {
	ctx := context.Background()
	repo := new(MockExchangeRateRepository)
	resolver := NewResolver(repo)

	repo.On("Get", ctx, jan15, domain.EUR, domain.Currency("GBP")).
		Return(&domain.ExchangeRate{Rate: decimal.RequireFromString("0.86")}, nil)
	repo.On("Get", ctx, jan15, domain.Currency("GBP"), domain.EUR).Return(nil, domain.ErrNotFound)
	repo.On("LatestOnOrBefore", ctx, domain.Currency("GBP"), domain.EUR, jan15).Return(nil, domain.ErrNotFound)

	report := resolver.SyncRates(ctx, []time.Time{jan15}, []domain.Currency{"EUR", "GBP"})

	assert.Equal(t, SyncReport{Resolved: 1, Degraded: 1}, report)
}
