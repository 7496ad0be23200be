package resnapshot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/brokerage"
	"github.com/simaogato/networth-backend/internal/usecase/snapshot"
)

// Report counts what a run did
type Report struct {
	Carried int // plain accounts carried forward
	Split   int // brokerage accounts re-split from their last entry
	Skipped int // already valued on the day, or never valued
}

// Generator carries the latest valuations forward to a new day so history has
// no gaps, re-valuing foreign currencies at that day's rate.
type Generator struct {
	Store     domain.Store
	Snapshots *snapshot.SnapshotService
	Brokerage *brokerage.BrokerageService
	Logger    *zap.Logger
}

// NewGenerator creates a new Generator instance
func NewGenerator(store domain.Store, snapshots *snapshot.SnapshotService, brokerageService *brokerage.BrokerageService, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		Store:     store,
		Snapshots: snapshots,
		Brokerage: brokerageService,
		Logger:    logger,
	}
}

// Run copies each active user account's most recent snapshot before day onto day.
// Logic:
//   - Derived accounts are skipped; their parent's split writes them
//   - A brokerage total with entries is re-split from its latest earlier entry
//   - Accounts already valued on day are left untouched
func (g *Generator) Run(ctx context.Context, ownerID string, day time.Time) (*Report, error) {
	day = domain.Day(day)
	repos := g.Store.Repos()

	accounts, err := repos.Accounts.List(ctx, ownerID, domain.AccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	latest, err := repos.Snapshots.Latest(ctx, ownerID, day, false)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshots: %w", err)
	}
	byAccount := make(map[string]*domain.AccountSnapshot, len(latest))
	for _, s := range latest {
		byAccount[s.AccountID.String()] = s
	}

	report := &Report{}
	for _, account := range accounts {
		if account.IsDerived {
			continue
		}
		last, ok := byAccount[account.ID.String()]
		if ok && last.Date.Equal(day) {
			report.Skipped++
			continue
		}

		if account.Type == domain.AccountTypeBrokerageTotal {
			entries, err := repos.BrokerageEntries.List(ctx, ownerID, account.ID, time.Time{}, day.AddDate(0, 0, -1))
			if err != nil {
				return nil, fmt.Errorf("failed to list brokerage entries: %w", err)
			}
			if len(entries) > 0 {
				entry := entries[len(entries)-1]
				_, err := g.Brokerage.ApplySplit(ctx, brokerage.SplitInput{
					OwnerID:    ownerID,
					AccountID:  account.ID,
					Date:       day,
					TotalValue: entry.TotalValue,
					CashValue:  entry.CashValue,
					Currency:   entry.Currency,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to carry forward brokerage %s: %w", account.ID, err)
				}
				report.Split++
				continue
			}
		}

		if !ok {
			report.Skipped++
			continue
		}
		_, err := g.Snapshots.RecordSnapshot(ctx, snapshot.RecordInput{
			OwnerID:   ownerID,
			AccountID: account.ID,
			Date:      day,
			Value:     last.Value,
			Currency:  last.Currency,
			Note:      "carried forward from " + domain.FormatDay(last.Date),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to carry forward account %s: %w", account.ID, err)
		}
		report.Carried++
	}

	g.Logger.Info("re-snapshot finished",
		zap.String("owner_id", ownerID),
		zap.String("date", domain.FormatDay(day)),
		zap.Int("carried", report.Carried),
		zap.Int("split", report.Split),
		zap.Int("skipped", report.Skipped))
	return report, nil
}
