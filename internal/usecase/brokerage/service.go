package brokerage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/domain"
	"github.com/simaogato/networth-backend/internal/usecase/allocator"
	"github.com/simaogato/networth-backend/internal/usecase/exchangerate"
)

// SplitInput is a user-declared brokerage composition for one day
type SplitInput struct {
	OwnerID    string
	AccountID  uuid.UUID
	Date       time.Time
	TotalValue decimal.Decimal
	CashValue  decimal.Decimal
	Currency   domain.Currency
}

// SplitSnapshots are the three snapshots written by a split
type SplitSnapshots struct {
	Total      *domain.AccountSnapshot
	Cash       *domain.AccountSnapshot
	Investment *domain.AccountSnapshot
}

// SplitResult describes everything a split wrote
type SplitResult struct {
	Entry      *domain.BrokerageEntry
	Parent     *domain.Account
	Cash       *domain.Account
	Investment *domain.Account
	Snapshots  SplitSnapshots
	Rate       exchangerate.Quote
}

// BrokerageService keeps brokerage totals and their cash and investment parts consistent
type BrokerageService struct {
	Store  domain.Store
	Rates  exchangerate.RateResolver
	Logger *zap.Logger
}

// NewBrokerageService creates a new BrokerageService instance
func NewBrokerageService(store domain.Store, rates exchangerate.RateResolver, logger *zap.Logger) *BrokerageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrokerageService{
		Store:  store,
		Rates:  rates,
		Logger: logger,
	}
}

// ApplySplit records a brokerage entry and fans it out into the parent and its
// two derived accounts.
// Logic:
//  1. Validate 0 <= cash <= total and the parent (exists, owned, BROKERAGE_TOTAL)
//  2. Resolve the day's rate once, before the transaction
//  3. In one transaction: upsert the entry and the parent snapshot, create the
//     cash and investment children if missing, upsert both child snapshots
//
// Either all writes happen or none.
func (s *BrokerageService) ApplySplit(ctx context.Context, in SplitInput) (*SplitResult, error) {
	if strings.TrimSpace(in.OwnerID) == "" {
		return nil, domain.NewValidationError("ownerId", "cannot be empty")
	}
	if in.Date.IsZero() {
		return nil, domain.NewValidationError("date", "cannot be empty")
	}
	currency, err := domain.ParseCurrency(string(in.Currency))
	if err != nil {
		return nil, err
	}

	entry := &domain.BrokerageEntry{
		ID:         uuid.New(),
		AccountID:  in.AccountID,
		Date:       domain.Day(in.Date),
		TotalValue: in.TotalValue,
		CashValue:  in.CashValue,
		Currency:   currency,
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	parent, err := s.Store.Repos().Accounts.GetByID(ctx, in.OwnerID, in.AccountID)
	if err != nil {
		return nil, err
	}
	if err := checkParent(parent); err != nil {
		return nil, err
	}

	quote, err := s.Rates.Resolve(ctx, entry.Date, currency, domain.EUR)
	if err != nil {
		return nil, err
	}
	split, err := allocator.SplitBrokerage(entry.TotalValue, entry.CashValue, quote.Rate)
	if err != nil {
		return nil, err
	}

	result := &SplitResult{Entry: entry, Rate: quote}
	err = s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		// Lock the parent so concurrent splits cannot both create children
		parent, err := repos.Accounts.GetForUpdate(ctx, in.OwnerID, in.AccountID)
		if err != nil {
			return err
		}
		if err := checkParent(parent); err != nil {
			return err
		}

		if err := repos.BrokerageEntries.Upsert(ctx, entry); err != nil {
			return err
		}

		total := domain.NewValuedSnapshot(parent.ID, entry.Date, split.Total.Native, split.Total.EUR, currency, quote.Rate)
		if err := repos.Snapshots.Upsert(ctx, total); err != nil {
			return err
		}

		cashAccount, investmentAccount, err := ensureChildren(ctx, repos, parent)
		if err != nil {
			return err
		}

		cash := domain.NewValuedSnapshot(cashAccount.ID, entry.Date, split.Cash.Native, split.Cash.EUR, currency, quote.Rate)
		if err := repos.Snapshots.Upsert(ctx, cash); err != nil {
			return err
		}
		invested := domain.NewValuedSnapshot(investmentAccount.ID, entry.Date, split.Invested.Native, split.Invested.EUR, currency, quote.Rate)
		if err := repos.Snapshots.Upsert(ctx, invested); err != nil {
			return err
		}

		result.Parent = parent
		result.Cash = cashAccount
		result.Investment = investmentAccount
		result.Snapshots = SplitSnapshots{Total: total, Cash: cash, Investment: invested}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if quote.Degraded() {
		s.Logger.Warn("brokerage split valued with degraded exchange rate",
			zap.String("account_id", in.AccountID.String()),
			zap.String("date", domain.FormatDay(entry.Date)),
			zap.String("currency", string(currency)),
			zap.String("source", string(quote.Source)))
	}
	return result, nil
}

// ListEntries returns a brokerage account's entries in ascending date order
func (s *BrokerageService) ListEntries(ctx context.Context, ownerID string, accountID uuid.UUID, from, to time.Time) ([]*domain.BrokerageEntry, error) {
	parent, err := s.Store.Repos().Accounts.GetByID(ctx, ownerID, accountID)
	if err != nil {
		return nil, err
	}
	if err := checkParent(parent); err != nil {
		return nil, err
	}
	return s.Store.Repos().BrokerageEntries.List(ctx, ownerID, accountID, from, to)
}

func checkParent(account *domain.Account) error {
	if account.Type != domain.AccountTypeBrokerageTotal {
		return domain.NewValidationError("accountId", "account is not a BROKERAGE_TOTAL account")
	}
	return nil
}

// ensureChildren returns the cash and investment children of parent, creating
// the missing ones right after the parent in display order.
func ensureChildren(ctx context.Context, repos domain.Repositories, parent *domain.Account) (*domain.Account, *domain.Account, error) {
	children, err := repos.Accounts.ListChildren(ctx, parent.OwnerID, parent.ID)
	if err != nil {
		return nil, nil, err
	}

	var cash, investment *domain.Account
	for _, c := range children {
		switch c.Type {
		case domain.AccountTypeBrokerageCash:
			cash = c
		case domain.AccountTypeBrokerageInvestment:
			investment = c
		}
	}

	switch {
	case cash == nil && investment == nil:
		if err := repos.Accounts.ShiftDisplayOrder(ctx, parent.OwnerID, parent.InstitutionID, parent.DisplayOrder, 2); err != nil {
			return nil, nil, err
		}
		if cash, err = createChild(ctx, repos, parent, domain.AccountTypeBrokerageCash, parent.DisplayOrder+1); err != nil {
			return nil, nil, err
		}
		if investment, err = createChild(ctx, repos, parent, domain.AccountTypeBrokerageInvestment, parent.DisplayOrder+2); err != nil {
			return nil, nil, err
		}
	case cash == nil:
		if err := repos.Accounts.ShiftDisplayOrder(ctx, parent.OwnerID, parent.InstitutionID, parent.DisplayOrder, 1); err != nil {
			return nil, nil, err
		}
		if cash, err = createChild(ctx, repos, parent, domain.AccountTypeBrokerageCash, parent.DisplayOrder+1); err != nil {
			return nil, nil, err
		}
	case investment == nil:
		if err := repos.Accounts.ShiftDisplayOrder(ctx, parent.OwnerID, parent.InstitutionID, cash.DisplayOrder, 1); err != nil {
			return nil, nil, err
		}
		if investment, err = createChild(ctx, repos, parent, domain.AccountTypeBrokerageInvestment, cash.DisplayOrder+1); err != nil {
			return nil, nil, err
		}
	}
	return cash, investment, nil
}

func createChild(ctx context.Context, repos domain.Repositories, parent *domain.Account, accountType domain.AccountType, displayOrder int) (*domain.Account, error) {
	suffix := domain.CashAccountSuffix
	if accountType == domain.AccountTypeBrokerageInvestment {
		suffix = domain.InvestmentAccountSuffix
	}
	parentID := parent.ID
	child := &domain.Account{
		ID:              uuid.New(),
		OwnerID:         parent.OwnerID,
		InstitutionID:   parent.InstitutionID,
		Name:            parent.Name + suffix,
		Type:            accountType,
		Currency:        parent.Currency,
		IsActive:        parent.IsActive,
		DisplayOrder:    displayOrder,
		ParentAccountID: &parentID,
		IsDerived:       true,
	}
	if err := child.Validate(); err != nil {
		return nil, err
	}
	if err := repos.Accounts.Create(ctx, child); err != nil {
		return nil, err
	}
	return child, nil
}
