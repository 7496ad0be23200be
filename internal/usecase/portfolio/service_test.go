package portfolio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/networth-backend/internal/adapter/repository/memory"
	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/brokerage"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
	"github.com/simaogato/networth-backend/internal/usecase/snapshot"
)

func d(s string) time.Time {
	t, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type env struct {
	store     *memory.Store
	snapshots *snapshot.SnapshotService
	brokerage *brokerage.BrokerageService
	portfolio *PortfolioService
}

func newEnv(t *testing.T, today string) *env {
	t.Helper()
	store := memory.NewStore()
	table := &exchangerate.RateTable{Rates: map[domain.Currency]map[domain.Currency]decimal.Decimal{
		"GBP": {"EUR": dec("1.16")},
		"SEK": {"EUR": dec("0.087")},
	}}
	resolver := exchangerate.NewResolver(store.Repos().ExchangeRates,
		exchangerate.WithProvider(exchangerate.NewStaticProvider(table)))

	p := NewPortfolioService(store, nil)
	now := d(today).Add(14 * time.Hour)
	p.Now = func() time.Time { return now }

	return &env{
		store:     store,
		snapshots: snapshot.NewSnapshotService(store, resolver, nil),
		brokerage: brokerage.NewBrokerageService(store, resolver, nil),
		portfolio: p,
	}
}

func (e *env) institution(t *testing.T, owner, name string, order int) *domain.Institution {
	t.Helper()
	inst := &domain.Institution{ID: uuid.New(), OwnerID: owner, Name: name, DisplayOrder: order}
	require.NoError(t, e.store.Repos().Institutions.Create(context.Background(), inst))
	return inst
}

func (e *env) account(t *testing.T, owner string, inst *domain.Institution, name string, accountType domain.AccountType, currency domain.Currency) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID: uuid.New(), OwnerID: owner, InstitutionID: inst.ID, Name: name,
		Type: accountType, Currency: currency, IsActive: true,
	}
	require.NoError(t, e.store.Repos().Accounts.Create(context.Background(), a))
	return a
}

func (e *env) record(t *testing.T, owner string, a *domain.Account, day, value string) {
	t.Helper()
	_, err := e.snapshots.RecordSnapshot(context.Background(), snapshot.RecordInput{
		OwnerID: owner, AccountID: a.ID, Date: d(day), Value: dec(value),
	})
	require.NoError(t, err)
}

func TestGetSummary_EmptyPortfolio(t *testing.T) {
	e := newEnv(t, "2024-01-01")

	summary, err := e.portfolio.GetSummary(context.Background(), "nobody", Options{})

	require.NoError(t, err)
	assert.Equal(t, 0, summary.AccountCount)
	assert.True(t, summary.TotalValueEUR.IsZero())
	assert.NotNil(t, summary.Distribution.ByType)
	assert.NotNil(t, summary.Distribution.ByCurrency)
	assert.NotNil(t, summary.Distribution.ByInstitution)
	assert.Empty(t, summary.Distribution.ByType)
	assert.Nil(t, summary.LastUpdated)
	assert.True(t, summary.DayChange.Percentage.IsZero())
}

func TestGetSummary_CheckingScenario(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-01-01")
	bank := e.institution(t, "alice", "Bank A", 0)
	checking := e.account(t, "alice", bank, "Checking", domain.AccountTypeChecking, domain.EUR)

	e.record(t, "alice", checking, "2024-01-01", "1000")
	summary, err := e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)
	assert.True(t, summary.TotalValueEUR.Equal(dec("1000")))

	e.record(t, "alice", checking, "2024-01-01", "1200")
	summary, err = e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)
	assert.True(t, summary.TotalValueEUR.Equal(dec("1200")))
	assert.Equal(t, 1, summary.AccountCount)
	assert.Equal(t, 1, summary.ValuedAccountCount)
	require.NotNil(t, summary.LastUpdated)
	assert.Equal(t, d("2024-01-01"), *summary.LastUpdated)

	require.Len(t, summary.Distribution.ByInstitution, 1)
	assert.Equal(t, "Bank A", summary.Distribution.ByInstitution[0].Name)
	assert.True(t, summary.Distribution.ByInstitution[0].Percentage.Equal(dec("100")))

	rows, err := e.store.Repos().Snapshots.List(ctx, "alice", domain.SnapshotQuery{AccountID: &checking.ID})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGetSummary_Distribution(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-03-10")
	bank := e.institution(t, "alice", "Bank", 0)
	uk := e.institution(t, "alice", "UK Bank", 1)

	checking := e.account(t, "alice", bank, "Checking", domain.AccountTypeChecking, domain.EUR)
	savings := e.account(t, "alice", uk, "Savings", domain.AccountTypeSavings, "GBP")
	isk := e.account(t, "alice", bank, "ISK", domain.AccountTypeSavings, "SEK")
	_ = e.account(t, "alice", bank, "Never valued", domain.AccountTypeOther, domain.EUR)

	e.record(t, "alice", checking, "2024-03-01", "500")
	e.record(t, "alice", savings, "2024-03-05", "1000")
	e.record(t, "alice", isk, "2024-03-10", "10000")
	// a future-dated value is not part of today's net worth
	e.record(t, "alice", checking, "2024-03-11", "999999")

	summary, err := e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)

	// 500 + 1160 + 870
	assert.True(t, summary.TotalValueEUR.Equal(dec("2530")))
	assert.Equal(t, 4, summary.AccountCount)
	assert.Equal(t, 3, summary.ValuedAccountCount)
	assert.Equal(t, d("2024-03-10"), *summary.LastUpdated)

	require.Len(t, summary.Distribution.ByType, 2)
	savingsType := summary.Distribution.ByType[0]
	assert.Equal(t, domain.AccountTypeSavings, savingsType.Type)
	assert.Equal(t, 2, savingsType.Count)
	assert.True(t, savingsType.ValueEUR.Equal(dec("2030")))
	require.Len(t, savingsType.NativeTotals, 2)
	assert.Equal(t, domain.Currency("GBP"), savingsType.NativeTotals[0].Currency)
	assert.True(t, savingsType.NativeTotals[1].Value.Equal(dec("10000")))

	require.Len(t, summary.Distribution.ByCurrency, 3)
	assert.Equal(t, domain.Currency("GBP"), summary.Distribution.ByCurrency[0].Currency)
	assert.True(t, summary.Distribution.ByCurrency[0].NativeValue.Equal(dec("1000")))
	assert.True(t, summary.Distribution.ByCurrency[0].Percentage.Equal(dec("45.85")))

	require.Len(t, summary.Distribution.ByInstitution, 2)
	assert.Equal(t, "Bank", summary.Distribution.ByInstitution[0].Name)
	assert.True(t, summary.Distribution.ByInstitution[0].ValueEUR.Equal(dec("1370")))
}

func TestGetSummary_DayChange(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-01-02")
	bank := e.institution(t, "alice", "Bank", 0)
	a := e.account(t, "alice", bank, "A", domain.AccountTypeChecking, domain.EUR)
	b := e.account(t, "alice", bank, "B", domain.AccountTypeChecking, domain.EUR)

	e.record(t, "alice", a, "2024-01-01", "1000")
	e.record(t, "alice", a, "2024-01-02", "1100")
	// b has nothing yesterday, so it adds to the change in full
	e.record(t, "alice", b, "2024-01-02", "100")

	summary, err := e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)

	assert.True(t, summary.DayChange.PreviousTotalEUR.Equal(dec("1000")))
	assert.True(t, summary.DayChange.Absolute.Equal(dec("200")))
	assert.True(t, summary.DayChange.Percentage.Equal(dec("20")))
}

func TestGetSummary_DayChangeWithoutBaseline(t *testing.T) {
	e := newEnv(t, "2024-01-02")
	bank := e.institution(t, "alice", "Bank", 0)
	a := e.account(t, "alice", bank, "A", domain.AccountTypeChecking, domain.EUR)
	e.record(t, "alice", a, "2024-01-02", "100")

	summary, err := e.portfolio.GetSummary(context.Background(), "alice", Options{})
	require.NoError(t, err)

	assert.True(t, summary.DayChange.Absolute.Equal(dec("100")))
	assert.True(t, summary.DayChange.Percentage.IsZero())
}

func TestGetSummary_BrokerageCountedOnce(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-02-02")
	broker := e.institution(t, "alice", "Broker", 0)
	isa := e.account(t, "alice", broker, "ISA", domain.AccountTypeBrokerageTotal, "GBP")

	_, err := e.brokerage.ApplySplit(ctx, brokerage.SplitInput{
		OwnerID: "alice", AccountID: isa.ID, Date: d("2024-02-01"),
		TotalValue: dec("1000"), CashValue: dec("200"), Currency: "GBP",
	})
	require.NoError(t, err)

	summary, err := e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)

	assert.True(t, summary.TotalValueEUR.Equal(dec("1160")))
	assert.Equal(t, 3, summary.AccountCount)
	assert.Equal(t, 2, summary.ValuedAccountCount)
	types := map[domain.AccountType]bool{}
	for _, tb := range summary.Distribution.ByType {
		types[tb.Type] = true
	}
	assert.True(t, types[domain.AccountTypeBrokerageCash])
	assert.True(t, types[domain.AccountTypeBrokerageInvestment])
	assert.False(t, types[domain.AccountTypeBrokerageTotal])

	// yesterday's baseline is deduplicated the same way
	assert.True(t, summary.DayChange.PreviousTotalEUR.Equal(dec("1160")))
	assert.True(t, summary.DayChange.Absolute.IsZero())
}

func TestGetSummary_StaleChildrenAreIgnored(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-02-10")
	broker := e.institution(t, "alice", "Broker", 0)
	isa := e.account(t, "alice", broker, "ISA", domain.AccountTypeBrokerageTotal, domain.EUR)

	_, err := e.brokerage.ApplySplit(ctx, brokerage.SplitInput{
		OwnerID: "alice", AccountID: isa.ID, Date: d("2024-02-01"),
		TotalValue: dec("1000"), CashValue: dec("200"), Currency: "EUR",
	})
	require.NoError(t, err)

	// a newer parent value written directly, e.g. by an import
	newer := domain.NewAccountSnapshot(isa.ID, d("2024-02-05"), dec("1500"), domain.EUR, decimal.NewFromInt(1), "")
	require.NoError(t, e.store.Repos().Snapshots.Upsert(ctx, newer))

	summary, err := e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)
	assert.True(t, summary.TotalValueEUR.Equal(dec("1500")))
}

func TestGetSummary_InactiveAccounts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-01-01")
	bank := e.institution(t, "alice", "Bank", 0)
	active := e.account(t, "alice", bank, "Active", domain.AccountTypeChecking, domain.EUR)
	closed := e.account(t, "alice", bank, "Closed", domain.AccountTypeChecking, domain.EUR)
	e.record(t, "alice", active, "2024-01-01", "100")
	e.record(t, "alice", closed, "2024-01-01", "50")
	require.NoError(t, e.store.Repos().Accounts.SetActive(ctx, "alice", closed.ID, false))

	summary, err := e.portfolio.GetSummary(ctx, "alice", Options{})
	require.NoError(t, err)
	assert.True(t, summary.TotalValueEUR.Equal(dec("100")))
	assert.Equal(t, 1, summary.AccountCount)

	summary, err = e.portfolio.GetSummary(ctx, "alice", Options{IncludeInactive: true})
	require.NoError(t, err)
	assert.True(t, summary.TotalValueEUR.Equal(dec("150")))
}

func TestGetSummary_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-01-01")

	owners := map[string]string{"alice": "100", "bob": "7"}
	for owner, value := range owners {
		inst := e.institution(t, owner, "Bank", 0)
		a := e.account(t, owner, inst, "Checking", domain.AccountTypeChecking, domain.EUR)
		e.record(t, owner, a, "2024-01-01", value)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for owner, value := range owners {
			wg.Add(1)
			go func(owner, value string) {
				defer wg.Done()
				summary, err := e.portfolio.GetSummary(ctx, owner, Options{})
				if assert.NoError(t, err) {
					assert.True(t, summary.TotalValueEUR.Equal(dec(value)), fmt.Sprintf("%s sees %s", owner, summary.TotalValueEUR))
				}
			}(owner, value)
		}
	}
	wg.Wait()
}

func TestGetHistory(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-02-05")
	bank := e.institution(t, "alice", "Bank", 0)
	broker := e.institution(t, "alice", "Broker", 1)
	checking := e.account(t, "alice", bank, "Checking", domain.AccountTypeChecking, domain.EUR)
	isa := e.account(t, "alice", broker, "ISA", domain.AccountTypeBrokerageTotal, domain.EUR)

	e.record(t, "alice", checking, "2024-02-01", "100")
	e.record(t, "alice", checking, "2024-02-03", "150")
	_, err := e.brokerage.ApplySplit(ctx, brokerage.SplitInput{
		OwnerID: "alice", AccountID: isa.ID, Date: d("2024-02-03"),
		TotalValue: dec("1000"), CashValue: dec("100"), Currency: "EUR",
	})
	require.NoError(t, err)
	e.record(t, "alice", checking, "2024-02-10", "999")

	points, err := e.portfolio.GetHistory(ctx, "alice", d("2024-02-01"), d("2024-02-05"), Options{})
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, d("2024-02-01"), points[0].Date)
	assert.True(t, points[0].TotalValueEUR.Equal(dec("100")))

	assert.Equal(t, d("2024-02-03"), points[1].Date)
	assert.True(t, points[1].TotalValueEUR.Equal(dec("1150")))
	require.Len(t, points[1].Breakdown, 2)
	assert.Equal(t, "Bank", points[1].Breakdown[0].InstitutionName)
	assert.Equal(t, "Broker", points[1].Breakdown[1].InstitutionName)
	assert.True(t, points[1].Breakdown[1].ValueEUR.Equal(dec("1000")))

	_, err = e.portfolio.GetHistory(ctx, "alice", d("2024-02-05"), d("2024-02-01"), Options{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetPerformance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-01-31")
	bank := e.institution(t, "alice", "Bank", 0)
	a := e.account(t, "alice", bank, "A", domain.AccountTypeChecking, domain.EUR)
	e.record(t, "alice", a, "2024-01-01", "1000")
	e.record(t, "alice", a, "2024-01-31", "1250")

	perf, err := e.portfolio.GetPerformance(ctx, "alice", d("2024-01-01"), d("2024-01-31"), Options{})
	require.NoError(t, err)

	assert.True(t, perf.StartValueEUR.Equal(dec("1000")))
	assert.True(t, perf.EndValueEUR.Equal(dec("1250")))
	assert.True(t, perf.Absolute.Equal(dec("250")))
	assert.True(t, perf.Percentage.Equal(dec("25")))
	assert.Equal(t, 30, perf.PeriodDays)
}

func TestGetCurrencyBreakdown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "2024-01-01")
	bank := e.institution(t, "alice", "Bank", 0)
	eur := e.account(t, "alice", bank, "EUR", domain.AccountTypeChecking, domain.EUR)
	gbp := e.account(t, "alice", bank, "GBP", domain.AccountTypeChecking, "GBP")
	e.record(t, "alice", eur, "2024-01-01", "840")
	e.record(t, "alice", gbp, "2024-01-01", "100")

	breakdown, err := e.portfolio.GetCurrencyBreakdown(ctx, "alice")
	require.NoError(t, err)

	assert.True(t, breakdown.TotalValueEUR.Equal(dec("956")))
	require.Len(t, breakdown.Currencies, 2)
	assert.Equal(t, domain.EUR, breakdown.Currencies[0].Currency)
	assert.True(t, breakdown.Currencies[1].ValueEUR.Equal(dec("116")))
	assert.True(t, breakdown.Currencies[1].Percentage.Equal(dec("12.13")))
}
