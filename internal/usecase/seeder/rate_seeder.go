package seeder

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
)

// SeedSource tags rates written by the seeder
const SeedSource = "seed"

// RateSeeder writes a fixed rate table into the exchange-rate cache so the
// stale fallback has a floor before any provider call succeeds
type RateSeeder struct {
	repo  domain.ExchangeRateRepository
	table *exchangerate.RateTable
	now   func() time.Time
}

// NewRateSeeder creates a new RateSeeder instance
func NewRateSeeder(repo domain.ExchangeRateRepository, table *exchangerate.RateTable) *RateSeeder {
	return &RateSeeder{
		repo:  repo,
		table: table,
		now:   time.Now,
	}
}

// Seed ensures every pair of the table has a cached rate on the table's date.
// Existing rows are left alone, so running it again is a no-op.
// Returns the number of rates written.
func (s *RateSeeder) Seed(ctx context.Context) (int, error) {
	day := s.table.Date
	if day.IsZero() {
		day = domain.Day(s.now())
	}

	written := 0
	for _, from := range sortedCurrencies(s.table.Rates) {
		targets := s.table.Rates[from]
		for _, to := range sortedCurrencies(targets) {
			if from == to {
				continue
			}

			// Try to get the rate for the seed day
			_, err := s.repo.Get(ctx, day, from, to)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return written, err
			}

			rate := &domain.ExchangeRate{
				ID:     uuid.New(),
				Date:   day,
				From:   from,
				To:     to,
				Rate:   targets[to],
				Source: SeedSource,
			}

			// Validate before creating
			if err := rate.Validate(); err != nil {
				return written, err
			}
			if err := s.repo.Save(ctx, rate); err != nil {
				return written, err
			}
			written++
		}
	}

	return written, nil
}

func sortedCurrencies[V any](m map[domain.Currency]V) []domain.Currency {
	out := make([]domain.Currency, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
