package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
)

const (
	// MaxBatchSize caps the number of updates accepted by RecordBatch
	MaxBatchSize = 50

	// DefaultListLimit applies when ListSnapshots is called without a limit
	DefaultListLimit = 30
)

// RecordInput is a single account valuation
type RecordInput struct {
	OwnerID   string
	AccountID uuid.UUID
	Date      time.Time
	Value     decimal.Decimal
	Currency  domain.Currency // empty means the account's currency
	Note      string
}

// RecordResult is a persisted snapshot together with the rate used to value it
type RecordResult struct {
	Snapshot *domain.AccountSnapshot
	Rate     exchangerate.Quote
}

// SnapshotService records and reads account valuations
type SnapshotService struct {
	Store  domain.Store
	Rates  exchangerate.RateResolver
	Logger *zap.Logger
}

// NewSnapshotService creates a new SnapshotService instance
func NewSnapshotService(store domain.Store, rates exchangerate.RateResolver, logger *zap.Logger) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{
		Store:  store,
		Rates:  rates,
		Logger: logger,
	}
}

// RecordSnapshot records the value of an account for a day
// Logic:
//  1. Validate value and currency, load the owner's account
//  2. Reject accounts whose values are maintained by the brokerage splitter
//  3. Resolve the day's rate into EUR (never fails on provider errors)
//  4. Upsert the snapshot for (account, day); the last write wins
func (s *SnapshotService) RecordSnapshot(ctx context.Context, in RecordInput) (*RecordResult, error) {
	prepared, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	err = s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		return upsert(ctx, repos, in.OwnerID, prepared.Snapshot)
	})
	if err != nil {
		return nil, err
	}

	s.logDegraded(prepared)
	return prepared, nil
}

// BatchItem is one account valuation inside RecordBatch
type BatchItem struct {
	AccountID uuid.UUID
	Value     decimal.Decimal
	Currency  domain.Currency
	Note      string
}

// RecordBatch records up to MaxBatchSize valuations for the same day in one
// transaction: either all of them are stored or none is.
func (s *SnapshotService) RecordBatch(ctx context.Context, ownerID string, date time.Time, items []BatchItem) ([]*RecordResult, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError("updates", "at least one update is required")
	}
	if len(items) > MaxBatchSize {
		return nil, domain.NewValidationError("updates", fmt.Sprintf("at most %d updates per batch", MaxBatchSize))
	}

	seen := make(map[uuid.UUID]struct{}, len(items))
	results := make([]*RecordResult, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.AccountID]; dup {
			return nil, domain.NewValidationError("updates", "account "+item.AccountID.String()+" appears more than once")
		}
		seen[item.AccountID] = struct{}{}

		prepared, err := s.prepare(ctx, RecordInput{
			OwnerID:   ownerID,
			AccountID: item.AccountID,
			Date:      date,
			Value:     item.Value,
			Currency:  item.Currency,
			Note:      item.Note,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, prepared)
	}

	err := s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		for _, r := range results {
			if err := upsert(ctx, repos, ownerID, r.Snapshot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		s.logDegraded(r)
	}
	return results, nil
}

// DeleteSnapshot removes the snapshot of an account for a day
func (s *SnapshotService) DeleteSnapshot(ctx context.Context, ownerID string, accountID uuid.UUID, date time.Time) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		account, err := repos.Accounts.GetByID(ctx, ownerID, accountID)
		if err != nil {
			return err
		}
		if err := checkWritable(ctx, repos, account); err != nil {
			return err
		}
		return repos.Snapshots.Delete(ctx, ownerID, accountID, domain.Day(date))
	})
}

// ListSnapshots returns an account's snapshots, newest first
func (s *SnapshotService) ListSnapshots(ctx context.Context, ownerID string, accountID uuid.UUID, from, to time.Time, limit int) ([]*domain.AccountSnapshot, error) {
	if _, err := s.Store.Repos().Accounts.GetByID(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.Store.Repos().Snapshots.List(ctx, ownerID, domain.SnapshotQuery{
		AccountID:       &accountID,
		From:            from,
		To:              to,
		IncludeInactive: true,
		Descending:      true,
		Limit:           limit,
	})
}

// prepare validates the input and values it; nothing is written
func (s *SnapshotService) prepare(ctx context.Context, in RecordInput) (*RecordResult, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, domain.NewValidationError("ownerId", "cannot be empty")
	}
	if in.Value.IsNegative() {
		return nil, domain.NewValidationError("value", "must not be negative")
	}
	if in.Date.IsZero() {
		return nil, domain.NewValidationError("date", "cannot be empty")
	}

	repos := s.Store.Repos()
	account, err := repos.Accounts.GetByID(ctx, in.OwnerID, in.AccountID)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(ctx, repos, account); err != nil {
		return nil, err
	}

	currency := account.Currency
	if in.Currency != "" {
		if currency, err = domain.ParseCurrency(string(in.Currency)); err != nil {
			return nil, err
		}
	}

	day := domain.Day(in.Date)
	quote, err := s.Rates.Resolve(ctx, day, currency, domain.EUR)
	if err != nil {
		return nil, err
	}

	return &RecordResult{
		Snapshot: domain.NewAccountSnapshot(account.ID, day, in.Value, currency, quote.Rate, in.Note),
		Rate:     quote,
	}, nil
}

func (s *SnapshotService) logDegraded(r *RecordResult) {
	if !r.Rate.Degraded() {
		return
	}
	s.Logger.Warn("snapshot valued with degraded exchange rate",
		zap.String("account_id", r.Snapshot.AccountID.String()),
		zap.String("date", domain.FormatDay(r.Snapshot.Date)),
		zap.String("currency", string(r.Snapshot.Currency)),
		zap.String("source", string(r.Rate.Source)))
}

// upsert re-checks the account inside the transaction before writing
func upsert(ctx context.Context, repos domain.Repositories, ownerID string, snapshot *domain.AccountSnapshot) error {
	account, err := repos.Accounts.GetByID(ctx, ownerID, snapshot.AccountID)
	if err != nil {
		return err
	}
	if err := checkWritable(ctx, repos, account); err != nil {
		return err
	}
	if err := snapshot.Validate(); err != nil {
		return err
	}
	return repos.Snapshots.Upsert(ctx, snapshot)
}

// checkWritable rejects accounts whose snapshots are owned by the brokerage splitter
func checkWritable(ctx context.Context, repos domain.Repositories, account *domain.Account) error {
	if account.IsDerived {
		return domain.NewValidationError("accountId", "derived brokerage accounts are updated through the brokerage split")
	}
	if account.Type != domain.AccountTypeBrokerageTotal {
		return nil
	}
	children, err := repos.Accounts.ListChildren(ctx, account.OwnerID, account.ID)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return domain.NewValidationError("accountId", "brokerage account with cash and investment parts must be updated through the brokerage split")
	}
	return nil
}
