package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/allocator"
)

// Options controls which accounts take part in an aggregation
type Options struct {
	IncludeInactive bool
}

// NativeTotal is a sum in one original currency
type NativeTotal struct {
	Currency domain.Currency
	Value    decimal.Decimal
}

// TypeBreakdown aggregates the valued accounts of one type
type TypeBreakdown struct {
	Type         domain.AccountType
	Count        int
	NativeTotals []NativeTotal
	ValueEUR     decimal.Decimal
	Percentage   decimal.Decimal
}

// CurrencyShare aggregates the valued accounts held in one currency
type CurrencyShare struct {
	Currency    domain.Currency
	Count       int
	NativeValue decimal.Decimal
	ValueEUR    decimal.Decimal
	Percentage  decimal.Decimal
}

// InstitutionShare aggregates the valued accounts of one institution
type InstitutionShare struct {
	InstitutionID uuid.UUID
	Name          string
	ValueEUR      decimal.Decimal
	Percentage    decimal.Decimal
}

// Distribution splits a total by type, currency and institution
type Distribution struct {
	ByType        []TypeBreakdown
	ByCurrency    []CurrencyShare
	ByInstitution []InstitutionShare
}

// Change compares a total with an earlier baseline
type Change struct {
	PreviousTotalEUR decimal.Decimal
	Absolute         decimal.Decimal
	Percentage       decimal.Decimal
}

// Summary is the current net worth of an owner
type Summary struct {
	AccountCount       int
	ValuedAccountCount int
	TotalValueEUR      decimal.Decimal
	Distribution       Distribution
	DayChange          Change
	LastUpdated        *time.Time
}

// InstitutionValue is one institution's value on a history day
type InstitutionValue struct {
	InstitutionID   uuid.UUID
	InstitutionName string
	ValueEUR        decimal.Decimal
}

// HistoryPoint is the net worth on one day that has snapshots
type HistoryPoint struct {
	Date          time.Time
	TotalValueEUR decimal.Decimal
	Breakdown     []InstitutionValue
}

// CurrencyBreakdown is the current value of active accounts per currency
type CurrencyBreakdown struct {
	TotalValueEUR decimal.Decimal
	Currencies    []CurrencyShare
}

// Performance compares the totals of two days
type Performance struct {
	StartDate     time.Time
	EndDate       time.Time
	StartValueEUR decimal.Decimal
	EndValueEUR   decimal.Decimal
	Absolute      decimal.Decimal
	Percentage    decimal.Decimal
	PeriodDays    int
}

// PortfolioService aggregates snapshots into net-worth views
type PortfolioService struct {
	Store  domain.Store
	Now    func() time.Time
	Logger *zap.Logger
}

// NewPortfolioService creates a new PortfolioService instance
func NewPortfolioService(store domain.Store, logger *zap.Logger) *PortfolioService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortfolioService{
		Store:  store,
		Now:    time.Now,
		Logger: logger,
	}
}

// GetSummary calculates the owner's current net worth
// Logic:
//   - Each account contributes its most recent snapshot on or before today
//   - A brokerage total is replaced by its cash and investment parts when they are as recent
//   - Day change compares with the snapshots dated exactly yesterday (missing = 0)
func (s *PortfolioService) GetSummary(ctx context.Context, ownerID string, opts Options) (*Summary, error) {
	today := domain.Day(s.Now())

	accounts, err := s.Store.Repos().Accounts.List(ctx, ownerID, domain.AccountFilter{IncludeInactive: opts.IncludeInactive})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	institutions, err := s.institutions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	index := accountIndex(accounts)

	latest, err := s.Store.Repos().Snapshots.Latest(ctx, ownerID, today, opts.IncludeInactive)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshots: %w", err)
	}
	current := collapseBrokerage(index, byAccount(latest))

	summary := &Summary{
		AccountCount:  len(accounts),
		TotalValueEUR: decimal.Zero,
		Distribution: Distribution{
			ByType:        []TypeBreakdown{},
			ByCurrency:    []CurrencyShare{},
			ByInstitution: []InstitutionShare{},
		},
	}

	types := map[domain.AccountType]*TypeBreakdown{}
	typeNative := map[domain.AccountType]map[domain.Currency]decimal.Decimal{}
	currencies := map[domain.Currency]*CurrencyShare{}
	perInstitution := map[uuid.UUID]*InstitutionShare{}

	for _, account := range accounts {
		snap, ok := current[account.ID]
		if !ok {
			continue
		}
		summary.ValuedAccountCount++
		summary.TotalValueEUR = summary.TotalValueEUR.Add(snap.ValueEUR)
		if summary.LastUpdated == nil || snap.Date.After(*summary.LastUpdated) {
			d := snap.Date
			summary.LastUpdated = &d
		}

		tb, ok := types[account.Type]
		if !ok {
			tb = &TypeBreakdown{Type: account.Type, ValueEUR: decimal.Zero}
			types[account.Type] = tb
			typeNative[account.Type] = map[domain.Currency]decimal.Decimal{}
		}
		tb.Count++
		tb.ValueEUR = tb.ValueEUR.Add(snap.ValueEUR)
		typeNative[account.Type][snap.Currency] = typeNative[account.Type][snap.Currency].Add(snap.Value)

		cs, ok := currencies[snap.Currency]
		if !ok {
			cs = &CurrencyShare{Currency: snap.Currency, NativeValue: decimal.Zero, ValueEUR: decimal.Zero}
			currencies[snap.Currency] = cs
		}
		cs.Count++
		cs.NativeValue = cs.NativeValue.Add(snap.Value)
		cs.ValueEUR = cs.ValueEUR.Add(snap.ValueEUR)

		is, ok := perInstitution[account.InstitutionID]
		if !ok {
			is = &InstitutionShare{InstitutionID: account.InstitutionID, ValueEUR: decimal.Zero}
			if inst, found := institutions[account.InstitutionID]; found {
				is.Name = inst.Name
			}
			perInstitution[account.InstitutionID] = is
		}
		is.ValueEUR = is.ValueEUR.Add(snap.ValueEUR)
	}

	total := summary.TotalValueEUR
	for t, tb := range types {
		tb.Percentage = allocator.Percentage(tb.ValueEUR, total)
		tb.NativeTotals = nativeTotals(typeNative[t])
		summary.Distribution.ByType = append(summary.Distribution.ByType, *tb)
	}
	sort.Slice(summary.Distribution.ByType, func(i, j int) bool {
		a, b := summary.Distribution.ByType[i], summary.Distribution.ByType[j]
		if !a.ValueEUR.Equal(b.ValueEUR) {
			return a.ValueEUR.GreaterThan(b.ValueEUR)
		}
		return a.Type < b.Type
	})
	summary.Distribution.ByCurrency = currencyShares(currencies, total)
	for _, is := range perInstitution {
		is.Percentage = allocator.Percentage(is.ValueEUR, total)
		summary.Distribution.ByInstitution = append(summary.Distribution.ByInstitution, *is)
	}
	sort.Slice(summary.Distribution.ByInstitution, func(i, j int) bool {
		a, b := summary.Distribution.ByInstitution[i], summary.Distribution.ByInstitution[j]
		if !a.ValueEUR.Equal(b.ValueEUR) {
			return a.ValueEUR.GreaterThan(b.ValueEUR)
		}
		return a.Name < b.Name
	})

	previous, err := s.dayTotal(ctx, ownerID, index, today.AddDate(0, 0, -1), opts.IncludeInactive)
	if err != nil {
		return nil, err
	}
	summary.DayChange = change(previous, total)

	s.Logger.Debug("portfolio summary calculated",
		zap.String("owner_id", ownerID),
		zap.Int("accounts", summary.AccountCount),
		zap.Int("valued_accounts", summary.ValuedAccountCount),
		zap.String("total_eur", total.String()))
	return summary, nil
}

// GetHistory returns one point per day in [start, end] that has snapshots, ascending
func (s *PortfolioService) GetHistory(ctx context.Context, ownerID string, start, end time.Time, opts Options) ([]HistoryPoint, error) {
	from, to, err := dateRange(start, end)
	if err != nil {
		return nil, err
	}

	accounts, err := s.Store.Repos().Accounts.List(ctx, ownerID, domain.AccountFilter{IncludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	institutions, err := s.institutions(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	index := accountIndex(accounts)

	snaps, err := s.Store.Repos().Snapshots.List(ctx, ownerID, domain.SnapshotQuery{
		From:            from,
		To:              to,
		IncludeInactive: opts.IncludeInactive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	var days []time.Time
	perDay := map[string][]*domain.AccountSnapshot{}
	for _, snap := range snaps {
		key := domain.FormatDay(snap.Date)
		if _, seen := perDay[key]; !seen {
			days = append(days, domain.Day(snap.Date))
		}
		perDay[key] = append(perDay[key], snap)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	points := make([]HistoryPoint, 0, len(days))
	for _, d := range days {
		values := collapseBrokerage(index, byAccount(perDay[domain.FormatDay(d)]))

		point := HistoryPoint{Date: d, TotalValueEUR: decimal.Zero, Breakdown: []InstitutionValue{}}
		perInstitution := map[uuid.UUID]*InstitutionValue{}
		for id, snap := range values {
			account, ok := index[id]
			if !ok {
				continue
			}
			point.TotalValueEUR = point.TotalValueEUR.Add(snap.ValueEUR)
			iv, ok := perInstitution[account.InstitutionID]
			if !ok {
				iv = &InstitutionValue{InstitutionID: account.InstitutionID, ValueEUR: decimal.Zero}
				if inst, found := institutions[account.InstitutionID]; found {
					iv.InstitutionName = inst.Name
				}
				perInstitution[account.InstitutionID] = iv
			}
			iv.ValueEUR = iv.ValueEUR.Add(snap.ValueEUR)
		}
		for _, iv := range perInstitution {
			point.Breakdown = append(point.Breakdown, *iv)
		}
		sort.Slice(point.Breakdown, func(i, j int) bool {
			a, b := point.Breakdown[i], point.Breakdown[j]
			if a.InstitutionName != b.InstitutionName {
				return a.InstitutionName < b.InstitutionName
			}
			return a.InstitutionID.String() < b.InstitutionID.String()
		})
		points = append(points, point)
	}
	return points, nil
}

// GetCurrencyBreakdown returns the current value of active accounts per original currency
func (s *PortfolioService) GetCurrencyBreakdown(ctx context.Context, ownerID string) (*CurrencyBreakdown, error) {
	summary, err := s.GetSummary(ctx, ownerID, Options{})
	if err != nil {
		return nil, err
	}
	return &CurrencyBreakdown{
		TotalValueEUR: summary.TotalValueEUR,
		Currencies:    summary.Distribution.ByCurrency,
	}, nil
}

// GetPerformance compares the totals on start and end
func (s *PortfolioService) GetPerformance(ctx context.Context, ownerID string, start, end time.Time, opts Options) (*Performance, error) {
	from, to, err := dateRange(start, end)
	if err != nil {
		return nil, err
	}

	accounts, err := s.Store.Repos().Accounts.List(ctx, ownerID, domain.AccountFilter{IncludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	index := accountIndex(accounts)

	startValue, err := s.dayTotal(ctx, ownerID, index, from, opts.IncludeInactive)
	if err != nil {
		return nil, err
	}
	endValue, err := s.dayTotal(ctx, ownerID, index, to, opts.IncludeInactive)
	if err != nil {
		return nil, err
	}

	c := change(startValue, endValue)
	return &Performance{
		StartDate:     from,
		EndDate:       to,
		StartValueEUR: startValue,
		EndValueEUR:   endValue,
		Absolute:      c.Absolute,
		Percentage:    c.Percentage,
		PeriodDays:    int(to.Sub(from).Hours() / 24),
	}, nil
}

// dayTotal sums the snapshots dated exactly day
func (s *PortfolioService) dayTotal(ctx context.Context, ownerID string, index map[uuid.UUID]*domain.Account, day time.Time, includeInactive bool) (decimal.Decimal, error) {
	snaps, err := s.Store.Repos().Snapshots.List(ctx, ownerID, domain.SnapshotQuery{
		From:            day,
		To:              day,
		IncludeInactive: includeInactive,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list snapshots for %s: %w", domain.FormatDay(day), err)
	}

	total := decimal.Zero
	for id, snap := range collapseBrokerage(index, byAccount(snaps)) {
		if _, ok := index[id]; ok {
			total = total.Add(snap.ValueEUR)
		}
	}
	return total, nil
}

func (s *PortfolioService) institutions(ctx context.Context, ownerID string) (map[uuid.UUID]*domain.Institution, error) {
	list, err := s.Store.Repos().Institutions.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	out := make(map[uuid.UUID]*domain.Institution, len(list))
	for _, inst := range list {
		out[inst.ID] = inst
	}
	return out, nil
}

func change(previous, current decimal.Decimal) Change {
	absolute := current.Sub(previous)
	return Change{
		PreviousTotalEUR: previous,
		Absolute:         absolute,
		Percentage:       allocator.Percentage(absolute, previous),
	}
}

func dateRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return time.Time{}, time.Time{}, domain.NewValidationError("date", "start and end dates are required")
	}
	from, to := domain.Day(start), domain.Day(end)
	if from.After(to) {
		return time.Time{}, time.Time{}, domain.NewValidationError("date", "start date must not be after end date")
	}
	return from, to, nil
}

func nativeTotals(m map[domain.Currency]decimal.Decimal) []NativeTotal {
	out := make([]NativeTotal, 0, len(m))
	for c, v := range m {
		out = append(out, NativeTotal{Currency: c, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

func currencyShares(m map[domain.Currency]*CurrencyShare, total decimal.Decimal) []CurrencyShare {
	out := make([]CurrencyShare, 0, len(m))
	for _, cs := range m {
		cs.Percentage = allocator.Percentage(cs.ValueEUR, total)
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ValueEUR.Equal(out[j].ValueEUR) {
			return out[i].ValueEUR.GreaterThan(out[j].ValueEUR)
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}
