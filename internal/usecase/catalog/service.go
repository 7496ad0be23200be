package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/domain"
)

// CreateInstitutionInput represents the input for creating an institution
type CreateInstitutionInput struct {
	OwnerID      string
	Name         string
	Category     string
	DisplayOrder int
}

// CreateAccountInput represents the input for creating a user account
type CreateAccountInput struct {
	OwnerID       string
	InstitutionID uuid.UUID
	Name          string
	Type          string // parsed case-insensitively
	Currency      string
	DisplayOrder  int
	Inactive      bool
}

// UpdateInstitutionInput changes an institution; nil fields are left as they are
type UpdateInstitutionInput struct {
	OwnerID      string
	ID           uuid.UUID
	Name         *string
	Category     *string
	DisplayOrder *int
}

// UpdateAccountInput changes a user account; nil fields are left as they are
type UpdateAccountInput struct {
	OwnerID      string
	ID           uuid.UUID
	Name         *string
	Type         *string
	Currency     *string
	DisplayOrder *int
}

// CatalogService manages institutions and accounts
type CatalogService struct {
	Store  domain.Store
	Logger *zap.Logger
}

// NewCatalogService creates a new CatalogService instance
func NewCatalogService(store domain.Store, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		Store:  store,
		Logger: logger,
	}
}

func (s *CatalogService) CreateInstitution(ctx context.Context, input CreateInstitutionInput) (*domain.Institution, error) {
	inst := &domain.Institution{
		ID:           uuid.New(),
		OwnerID:      input.OwnerID,
		Name:         strings.TrimSpace(input.Name),
		Category:     strings.TrimSpace(input.Category),
		DisplayOrder: input.DisplayOrder,
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if err := s.Store.Repos().Institutions.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create institution: %w", err)
	}
	return inst, nil
}

func (s *CatalogService) ListInstitutions(ctx context.Context, ownerID string) ([]*domain.Institution, error) {
	return s.Store.Repos().Institutions.List(ctx, ownerID)
}

func (s *CatalogService) UpdateInstitution(ctx context.Context, input UpdateInstitutionInput) (*domain.Institution, error) {
	var inst *domain.Institution
	err := s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		inst, err = repos.Institutions.GetByID(ctx, input.OwnerID, input.ID)
		if err != nil {
			return err
		}
		if input.Name != nil {
			inst.Name = strings.TrimSpace(*input.Name)
		}
		if input.Category != nil {
			inst.Category = strings.TrimSpace(*input.Category)
		}
		if input.DisplayOrder != nil {
			inst.DisplayOrder = *input.DisplayOrder
		}
		if err := inst.Validate(); err != nil {
			return err
		}
		return repos.Institutions.Update(ctx, inst)
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// DeleteInstitution removes an institution. Without cascade an institution
// that still has accounts is rejected; with cascade its accounts, snapshots and
// brokerage entries are removed in the same transaction.
func (s *CatalogService) DeleteInstitution(ctx context.Context, ownerID string, id uuid.UUID, cascade bool) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Institutions.GetByID(ctx, ownerID, id); err != nil {
			return err
		}

		accounts, err := repos.Accounts.List(ctx, ownerID, domain.AccountFilter{IncludeInactive: true, InstitutionID: &id})
		if err != nil {
			return err
		}
		if len(accounts) > 0 && !cascade {
			return domain.NewValidationError("institutionId", fmt.Sprintf("institution still has %d accounts", len(accounts)))
		}

		// Children first so no derived account outlives its parent
		for _, account := range derivedFirst(accounts) {
			if err := deleteAccountData(ctx, repos, ownerID, account.ID); err != nil {
				return err
			}
		}
		return repos.Institutions.Delete(ctx, ownerID, id)
	})
}

// CreateAccount creates a user account. Derived brokerage accounts are created
// by the brokerage splitter only.
func (s *CatalogService) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	accountType, err := domain.ParseAccountType(input.Type)
	if err != nil {
		return nil, err
	}
	if accountType.IsBrokerageChild() {
		return nil, domain.NewValidationError("type", string(accountType)+" accounts are created by the brokerage splitter")
	}
	currency, err := domain.ParseCurrency(input.Currency)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:            uuid.New(),
		OwnerID:       input.OwnerID,
		InstitutionID: input.InstitutionID,
		Name:          strings.TrimSpace(input.Name),
		Type:          accountType,
		Currency:      currency,
		IsActive:      !input.Inactive,
		DisplayOrder:  input.DisplayOrder,
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}

	err = s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Institutions.GetByID(ctx, input.OwnerID, input.InstitutionID); err != nil {
			return err
		}
		return repos.Accounts.Create(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *CatalogService) ListAccounts(ctx context.Context, ownerID string, includeInactive bool) ([]*domain.Account, error) {
	return s.Store.Repos().Accounts.List(ctx, ownerID, domain.AccountFilter{IncludeInactive: includeInactive})
}

// SetAccountActive activates or deactivates an account together with its derived children
func (s *CatalogService) SetAccountActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		account, err := repos.Accounts.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if account.IsDerived {
			return domain.NewValidationError("accountId", "derived accounts follow their brokerage account")
		}
		children, err := repos.Accounts.ListChildren(ctx, ownerID, id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := repos.Accounts.SetActive(ctx, ownerID, child.ID, active); err != nil {
				return err
			}
		}
		return repos.Accounts.SetActive(ctx, ownerID, id, active)
	})
}

// UpdateAccount renames, reorders or recategorises a user account.
// Derived children follow their brokerage account: they take its name with
// their suffix, its currency, and keep their offset in display order.
func (s *CatalogService) UpdateAccount(ctx context.Context, input UpdateAccountInput) (*domain.Account, error) {
	var account *domain.Account
	err := s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		account, err = repos.Accounts.GetForUpdate(ctx, input.OwnerID, input.ID)
		if err != nil {
			return err
		}
		if account.IsDerived {
			return domain.NewValidationError("accountId", "derived accounts follow their brokerage account")
		}
		children, err := repos.Accounts.ListChildren(ctx, input.OwnerID, input.ID)
		if err != nil {
			return err
		}

		previousOrder := account.DisplayOrder
		if input.Name != nil {
			account.Name = strings.TrimSpace(*input.Name)
		}
		if input.Type != nil {
			accountType, err := domain.ParseAccountType(*input.Type)
			if err != nil {
				return err
			}
			if accountType != domain.AccountTypeBrokerageTotal && len(children) > 0 {
				return domain.NewValidationError("type", "account has cash and investment parts and must stay BROKERAGE_TOTAL")
			}
			account.Type = accountType
		}
		if input.Currency != nil {
			currency, err := domain.ParseCurrency(*input.Currency)
			if err != nil {
				return err
			}
			account.Currency = currency
		}
		if input.DisplayOrder != nil {
			account.DisplayOrder = *input.DisplayOrder
		}
		if err := account.Validate(); err != nil {
			return err
		}
		if err := repos.Accounts.Update(ctx, account); err != nil {
			return err
		}

		for _, child := range children {
			suffix := domain.CashAccountSuffix
			if child.Type == domain.AccountTypeBrokerageInvestment {
				suffix = domain.InvestmentAccountSuffix
			}
			child.Name = account.Name + suffix
			child.Currency = account.Currency
			child.DisplayOrder += account.DisplayOrder - previousOrder
			if err := repos.Accounts.Update(ctx, child); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount removes a user account with its snapshots and brokerage
// entries. Deleting a brokerage total also removes its derived children.
func (s *CatalogService) DeleteAccount(ctx context.Context, ownerID string, id uuid.UUID) error {
	err := s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		account, err := repos.Accounts.GetByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if account.IsDerived {
			return domain.NewValidationError("accountId", "derived accounts are removed with their brokerage account")
		}

		children, err := repos.Accounts.ListChildren(ctx, ownerID, id)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := deleteAccountData(ctx, repos, ownerID, child.ID); err != nil {
				return err
			}
		}
		return deleteAccountData(ctx, repos, ownerID, id)
	})
	if err != nil {
		return err
	}

	s.Logger.Info("account deleted", zap.String("owner_id", ownerID), zap.String("account_id", id.String()))
	return nil
}

func deleteAccountData(ctx context.Context, repos domain.Repositories, ownerID string, id uuid.UUID) error {
	if err := repos.Snapshots.DeleteByAccount(ctx, ownerID, id); err != nil {
		return err
	}
	if err := repos.BrokerageEntries.DeleteByAccount(ctx, ownerID, id); err != nil {
		return err
	}
	return repos.Accounts.Delete(ctx, ownerID, id)
}

func derivedFirst(accounts []*domain.Account) []*domain.Account {
	out := make([]*domain.Account, 0, len(accounts))
	for _, a := range accounts {
		if a.IsDerived {
			out = append(out, a)
		}
	}
	for _, a := range accounts {
		if !a.IsDerived {
			out = append(out, a)
		}
	}
	return out
}
