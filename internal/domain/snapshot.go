package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountSnapshot is the value of an account on a calendar day
type AccountSnapshot struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	Date         time.Time
	Value        decimal.Decimal // in Currency
	Currency     Currency
	ValueEUR     decimal.Decimal
	ExchangeRate *decimal.Decimal // nil when Currency is EUR
	Note         string
}

// NewAccountSnapshot values the given amount at rate (Currency to EUR)
func NewAccountSnapshot(accountID uuid.UUID, date time.Time, value decimal.Decimal, currency Currency, rate decimal.Decimal, note string) *AccountSnapshot {
	return newSnapshot(accountID, date, value, value.Mul(rate), currency, rate, note)
}

func newSnapshot(accountID uuid.UUID, date time.Time, value, valueEUR decimal.Decimal, currency Currency, rate decimal.Decimal, note string) *AccountSnapshot {
	s := &AccountSnapshot{
		ID:        uuid.New(),
		AccountID: accountID,
		Date:      Day(date),
		Value:     value,
		Currency:  currency,
		ValueEUR:  valueEUR,
		Note:      note,
	}
	if currency != EUR {
		r := rate
		s.ExchangeRate = &r
	}
	return s
}

// NewValuedSnapshot builds a snapshot whose EUR value was computed by the caller
func NewValuedSnapshot(accountID uuid.UUID, date time.Time, value, valueEUR decimal.Decimal, currency Currency, rate decimal.Decimal) *AccountSnapshot {
	return newSnapshot(accountID, date, value, valueEUR, currency, rate, "")
}

// Validate ensures the snapshot adheres to domain rules
func (s *AccountSnapshot) Validate() error {
	if s.AccountID == uuid.Nil {
		return NewValidationError("accountId", "cannot be empty")
	}
	if s.Date.IsZero() {
		return NewValidationError("date", "cannot be empty")
	}
	if s.Value.IsNegative() {
		return NewValidationError("value", "must not be negative")
	}
	if err := s.Currency.Validate(); err != nil {
		return err
	}
	if s.Currency != EUR && s.ExchangeRate == nil {
		return NewValidationError("exchangeRate", "required for non-EUR snapshots")
	}
	return nil
}

// ExchangeRate is a cached conversion factor: 1 unit of From = Rate units of To
type ExchangeRate struct {
	ID     uuid.UUID
	Date   time.Time
	From   Currency
	To     Currency
	Rate   decimal.Decimal
	Source string // provider name, "static" or "seed"
}

// Validate ensures the rate can be cached
func (r *ExchangeRate) Validate() error {
	if err := r.From.Validate(); err != nil {
		return err
	}
	if err := r.To.Validate(); err != nil {
		return err
	}
	if r.From == r.To {
		return NewValidationError("to", "same-currency rates are never stored")
	}
	if !r.Rate.IsPositive() {
		return NewValidationError("rate", "must be positive")
	}
	return nil
}
