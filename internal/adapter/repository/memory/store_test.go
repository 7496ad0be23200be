package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/networth-backend/internal/domain"
)

func day(s string) time.Time {
	d, err := domain.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedAccount(t *testing.T, store *Store, owner string, active bool) *domain.Account {
	t.Helper()
	ctx := context.Background()
	inst := &domain.Institution{ID: uuid.New(), OwnerID: owner, Name: "Bank"}
	require.NoError(t, store.Repos().Institutions.Create(ctx, inst))
	account := &domain.Account{
		ID:            uuid.New(),
		OwnerID:       owner,
		InstitutionID: inst.ID,
		Name:          "Checking",
		Type:          domain.AccountTypeChecking,
		Currency:      domain.EUR,
		IsActive:      active,
	}
	require.NoError(t, store.Repos().Accounts.Create(ctx, account))
	return account
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := seedAccount(t, store, "alice", true)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		s := domain.NewAccountSnapshot(account.ID, day("2024-01-15"), decimal.NewFromInt(10), domain.EUR, decimal.NewFromInt(1), "")
		require.NoError(t, repos.Snapshots.Upsert(ctx, s))

		// visible inside the transaction only
		_, err := repos.Snapshots.Get(ctx, "alice", account.ID, day("2024-01-15"))
		require.NoError(t, err)
		_, err = store.Repos().Snapshots.Get(ctx, "alice", account.ID, day("2024-01-15"))
		require.ErrorIs(t, err, domain.ErrNotFound)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	_, err = store.Repos().Snapshots.Get(ctx, "alice", account.ID, day("2024-01-15"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := seedAccount(t, store, "alice", true)

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		s := domain.NewAccountSnapshot(account.ID, day("2024-01-15"), decimal.NewFromInt(10), domain.EUR, decimal.NewFromInt(1), "")
		return repos.Snapshots.Upsert(ctx, s)
	})
	require.NoError(t, err)

	got, err := store.Repos().Snapshots.Get(ctx, "alice", account.ID, day("2024-01-15"))
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(decimal.NewFromInt(10)))
}

func TestSnapshotUpsert_KeepsRowIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := seedAccount(t, store, "alice", true)
	repo := store.Repos().Snapshots

	first := domain.NewAccountSnapshot(account.ID, day("2024-01-15"), decimal.NewFromInt(10), domain.EUR, decimal.NewFromInt(1), "")
	require.NoError(t, repo.Upsert(ctx, first))
	second := domain.NewAccountSnapshot(account.ID, day("2024-01-15"), decimal.NewFromInt(20), domain.EUR, decimal.NewFromInt(1), "")
	require.NoError(t, repo.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID)
	all, err := repo.List(ctx, "alice", domain.SnapshotQuery{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Value.Equal(decimal.NewFromInt(20)))
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	account := seedAccount(t, store, "alice", true)
	s := domain.NewAccountSnapshot(account.ID, day("2024-01-15"), decimal.NewFromInt(10), domain.EUR, decimal.NewFromInt(1), "")
	require.NoError(t, store.Repos().Snapshots.Upsert(ctx, s))

	_, err := store.Repos().Accounts.GetByID(ctx, "mallory", account.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snaps, err := store.Repos().Snapshots.List(ctx, "mallory", domain.SnapshotQuery{})
	require.NoError(t, err)
	assert.Empty(t, snaps)

	err = store.Repos().Snapshots.Delete(ctx, "mallory", account.ID, day("2024-01-15"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSnapshotLatest(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	active := seedAccount(t, store, "alice", true)
	inactive := seedAccount(t, store, "alice", false)
	repo := store.Repos().Snapshots

	for _, d := range []string{"2024-01-10", "2024-01-12", "2024-01-20"} {
		require.NoError(t, repo.Upsert(ctx, domain.NewAccountSnapshot(active.ID, day(d), decimal.NewFromInt(1), domain.EUR, decimal.NewFromInt(1), "")))
	}
	require.NoError(t, repo.Upsert(ctx, domain.NewAccountSnapshot(inactive.ID, day("2024-01-11"), decimal.NewFromInt(1), domain.EUR, decimal.NewFromInt(1), "")))

	latest, err := repo.Latest(ctx, "alice", day("2024-01-15"), false)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, day("2024-01-12"), latest[0].Date)

	latest, err = repo.Latest(ctx, "alice", day("2024-01-15"), true)
	require.NoError(t, err)
	assert.Len(t, latest, 2)
}

func TestRateRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Repos().ExchangeRates

	for _, r := range []struct {
		date string
		rate string
	}{{"2024-01-10", "1.15"}, {"2024-01-12", "1.16"}, {"2024-01-20", "1.18"}} {
		require.NoError(t, repo.Save(ctx, &domain.ExchangeRate{
			ID: uuid.New(), Date: day(r.date), From: "GBP", To: "EUR", Rate: decimal.RequireFromString(r.rate), Source: "test",
		}))
	}

	stale, err := repo.LatestOnOrBefore(ctx, "GBP", "EUR", day("2024-01-15"))
	require.NoError(t, err)
	assert.True(t, stale.Rate.Equal(decimal.RequireFromString("1.16")))

	_, err = repo.LatestOnOrBefore(ctx, "GBP", "EUR", day("2024-01-01"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, day("2024-01-20"), latest[0].Date)

	err = repo.Save(ctx, &domain.ExchangeRate{Date: day("2024-01-10"), From: "EUR", To: "EUR", Rate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestShiftDisplayOrder(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	first := seedAccount(t, store, "alice", true)
	repos := store.Repos()

	second := &domain.Account{
		ID: uuid.New(), OwnerID: "alice", InstitutionID: first.InstitutionID, Name: "Savings",
		Type: domain.AccountTypeSavings, Currency: domain.EUR, IsActive: true, DisplayOrder: 1,
	}
	require.NoError(t, repos.Accounts.Create(ctx, second))

	require.NoError(t, repos.Accounts.ShiftDisplayOrder(ctx, "alice", first.InstitutionID, 0, 2))

	got, err := repos.Accounts.GetByID(ctx, "alice", second.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.DisplayOrder)
	got, err = repos.Accounts.GetByID(ctx, "alice", first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DisplayOrder)
}
