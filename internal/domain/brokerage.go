package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BrokerageEntry is the user-declared composition of a brokerage account on a day
type BrokerageEntry struct {
	ID         uuid.UUID
	AccountID  uuid.UUID // the BROKERAGE_TOTAL parent
	Date       time.Time
	TotalValue decimal.Decimal
	CashValue  decimal.Decimal
	Currency   Currency
}

// InvestedValue is the non-cash part of the total
func (e *BrokerageEntry) InvestedValue() decimal.Decimal {
	return e.TotalValue.Sub(e.CashValue)
}

// Validate ensures 0 <= cash <= total and a known currency
func (e *BrokerageEntry) Validate() error {
	if e.AccountID == uuid.Nil {
		return NewValidationError("accountId", "cannot be empty")
	}
	if e.TotalValue.IsNegative() {
		return NewValidationError("totalValue", "must not be negative")
	}
	if e.CashValue.IsNegative() {
		return NewValidationError("cashValue", "must not be negative")
	}
	if e.CashValue.GreaterThan(e.TotalValue) {
		return NewValidationError("cashValue", "cash value cannot exceed total value")
	}
	return e.Currency.Validate()
}
