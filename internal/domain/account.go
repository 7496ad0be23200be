package domain

import (
	"strings"

	"github.com/google/uuid"
)

// AccountType classifies an account. The spelling below is the only one stored.
type AccountType string

const (
	AccountTypeChecking            AccountType = "CHECKING"
	AccountTypeSavings             AccountType = "SAVINGS"
	AccountTypeInvestment          AccountType = "INVESTMENT"
	AccountTypePension             AccountType = "PENSION"
	AccountTypeCreditCard          AccountType = "CREDIT_CARD"
	AccountTypeLoan                AccountType = "LOAN"
	AccountTypeCrypto              AccountType = "CRYPTO"
	AccountTypeOther               AccountType = "OTHER"
	AccountTypeBrokerageTotal      AccountType = "BROKERAGE_TOTAL"
	AccountTypeBrokerageCash       AccountType = "BROKERAGE_CASH"
	AccountTypeBrokerageInvestment AccountType = "BROKERAGE_INVESTMENT"
)

var accountTypes = map[AccountType]struct{}{
	AccountTypeChecking:            {},
	AccountTypeSavings:             {},
	AccountTypeInvestment:          {},
	AccountTypePension:             {},
	AccountTypeCreditCard:          {},
	AccountTypeLoan:                {},
	AccountTypeCrypto:              {},
	AccountTypeOther:               {},
	AccountTypeBrokerageTotal:      {},
	AccountTypeBrokerageCash:       {},
	AccountTypeBrokerageInvestment: {},
}

// ParseAccountType accepts any casing and returns the canonical type
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := accountTypes[t]; !ok {
		return "", NewValidationError("type", "unknown account type "+s)
	}
	return t, nil
}

// IsBrokerageChild reports whether accounts of this type are maintained by the splitter
func (t AccountType) IsBrokerageChild() bool {
	return t == AccountTypeBrokerageCash || t == AccountTypeBrokerageInvestment
}

// Suffix appended to the parent name for derived accounts
const (
	CashAccountSuffix       = " - Cash"
	InvestmentAccountSuffix = " - Investments"
)

// Account is a single place where value is held
type Account struct {
	ID              uuid.UUID
	OwnerID         string
	InstitutionID   uuid.UUID
	Name            string
	Type            AccountType
	Currency        Currency
	IsActive        bool
	DisplayOrder    int
	ParentAccountID *uuid.UUID // set only on derived brokerage children
	IsDerived       bool
}

// Validate ensures the account adheres to domain rules.
// The parent's own type is checked where the parent is loaded.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.OwnerID) == "" {
		return NewValidationError("ownerId", "cannot be empty")
	}
	if strings.TrimSpace(a.Name) == "" {
		return NewValidationError("name", "account name cannot be empty")
	}
	if _, ok := accountTypes[a.Type]; !ok {
		return NewValidationError("type", "unknown account type "+string(a.Type))
	}
	if err := a.Currency.Validate(); err != nil {
		return err
	}

	// Derived accounts and parent links come together, and only for brokerage children
	if a.ParentAccountID != nil && !a.IsDerived {
		return NewValidationError("parentAccountId", "only derived accounts can have a parent")
	}
	if a.IsDerived {
		if a.ParentAccountID == nil {
			return NewValidationError("parentAccountId", "derived account must have a parent")
		}
		if !a.Type.IsBrokerageChild() {
			return NewValidationError("type", "derived account must be BROKERAGE_CASH or BROKERAGE_INVESTMENT")
		}
	}
	if a.Type.IsBrokerageChild() && !a.IsDerived {
		return NewValidationError("type", string(a.Type)+" accounts are created by the brokerage splitter")
	}
	return nil
}
