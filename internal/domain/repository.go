package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InstitutionRepository defines the interface for institution persistence operations
type InstitutionRepository interface {
	Create(ctx context.Context, inst *Institution) error

	// GetByID returns ErrNotFound for missing and foreign-owned institutions alike
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*Institution, error)

	// List returns the owner's institutions ordered by display order
	List(ctx context.Context, ownerID string) ([]*Institution, error)

	// Update writes name, category and display order
	Update(ctx context.Context, inst *Institution) error

	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// AccountFilter narrows AccountRepository.List
type AccountFilter struct {
	IncludeInactive bool
	InstitutionID   *uuid.UUID
}

// AccountRepository defines the interface for account persistence operations
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error

	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*Account, error)

	// GetForUpdate is GetByID that also locks the row until the transaction ends.
	// Stores that serialise writers may treat it as GetByID.
	GetForUpdate(ctx context.Context, ownerID string, id uuid.UUID) (*Account, error)

	// List returns accounts ordered by institution display order, then account display order
	List(ctx context.Context, ownerID string, filter AccountFilter) ([]*Account, error)

	// ListChildren returns the derived accounts of a brokerage total
	ListChildren(ctx context.Context, ownerID string, parentID uuid.UUID) ([]*Account, error)

	// ShiftDisplayOrder adds by to the display order of every account of the
	// institution whose display order is greater than after
	ShiftDisplayOrder(ctx context.Context, ownerID string, institutionID uuid.UUID, after, by int) error

	// SetActive changes the active flag of one account
	SetActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) error

	// Update writes name, type, currency and display order
	Update(ctx context.Context, account *Account) error

	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// SnapshotQuery narrows SnapshotRepository.List. Zero dates leave the range open.
type SnapshotQuery struct {
	AccountID       *uuid.UUID
	From            time.Time
	To              time.Time
	IncludeInactive bool
	Descending      bool
	Limit           int
}

// SnapshotRepository defines the interface for snapshot persistence operations
type SnapshotRepository interface {
	// Upsert inserts or replaces the snapshot for (AccountID, Date).
	// On return snapshot.ID holds the persisted row's ID.
	Upsert(ctx context.Context, snapshot *AccountSnapshot) error

	Get(ctx context.Context, ownerID string, accountID uuid.UUID, date time.Time) (*AccountSnapshot, error)

	// List returns the owner's snapshots ordered by date, then account
	List(ctx context.Context, ownerID string, query SnapshotQuery) ([]*AccountSnapshot, error)

	// Latest returns, per account, the most recent snapshot dated on or before at
	Latest(ctx context.Context, ownerID string, at time.Time, includeInactive bool) ([]*AccountSnapshot, error)

	Delete(ctx context.Context, ownerID string, accountID uuid.UUID, date time.Time) error

	DeleteByAccount(ctx context.Context, ownerID string, accountID uuid.UUID) error
}

// BrokerageEntryRepository defines the interface for brokerage entry persistence operations
type BrokerageEntryRepository interface {
	// Upsert inserts or replaces the entry for (AccountID, Date); entry.ID is updated
	Upsert(ctx context.Context, entry *BrokerageEntry) error

	// List returns entries of one account in ascending date order; zero dates leave the range open
	List(ctx context.Context, ownerID string, accountID uuid.UUID, from, to time.Time) ([]*BrokerageEntry, error)

	DeleteByAccount(ctx context.Context, ownerID string, accountID uuid.UUID) error
}

// ExchangeRateRepository defines the interface for the exchange-rate cache.
// Rates are global reference data and are not owner scoped.
type ExchangeRateRepository interface {
	// Get returns the rate for the exact day, or ErrNotFound
	Get(ctx context.Context, date time.Time, from, to Currency) (*ExchangeRate, error)

	// Save upserts on (Date, From, To)
	Save(ctx context.Context, rate *ExchangeRate) error

	// LatestOnOrBefore returns the most recent rate for the pair dated on or before date
	LatestOnOrBefore(ctx context.Context, from, to Currency, date time.Time) (*ExchangeRate, error)

	// Latest returns the most recent rate of every stored pair
	Latest(ctx context.Context) ([]*ExchangeRate, error)
}

// Repositories bundles the repositories bound to one connection or transaction
type Repositories struct {
	Institutions     InstitutionRepository
	Accounts         AccountRepository
	Snapshots        SnapshotRepository
	BrokerageEntries BrokerageEntryRepository
	ExchangeRates    ExchangeRateRepository
}

// Store is the transactional record store.
// WithinTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
