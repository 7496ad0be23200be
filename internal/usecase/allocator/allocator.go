package allocator

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/simaogato/networth-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Leg is one part of a brokerage valuation in native currency and in EUR
type Leg struct {
	Native decimal.Decimal
	EUR    decimal.Decimal
}

// BrokerageSplit is the valuation of a brokerage total and its cash and invested parts
type BrokerageSplit struct {
	Rate     decimal.Decimal
	Total    Leg
	Cash     Leg
	Invested Leg
}

// SplitBrokerage splits total into cash and invested value and converts every
// leg with the same rate.
// Logic:
//  1. Validate 0 <= cash <= total and rate > 0
//  2. Invested = Total - Cash
//  3. EUR legs use one rate, so Cash.EUR + Invested.EUR == Total.EUR
//
// Safety: Ensures cash + invested equals total exactly (no penny lost)
func SplitBrokerage(total, cash, rate decimal.Decimal) (*BrokerageSplit, error) {
	if total.IsNegative() {
		return nil, domain.NewValidationError("totalValue", "must not be negative")
	}
	if cash.IsNegative() {
		return nil, domain.NewValidationError("cashValue", "must not be negative")
	}
	if cash.GreaterThan(total) {
		return nil, domain.NewValidationError("cashValue", "cash value cannot exceed total value")
	}
	if !rate.IsPositive() {
		return nil, domain.NewValidationError("rate", "exchange rate must be positive")
	}

	invested := total.Sub(cash)
	split := &BrokerageSplit{
		Rate:     rate,
		Total:    Leg{Native: total, EUR: total.Mul(rate)},
		Cash:     Leg{Native: cash, EUR: cash.Mul(rate)},
		Invested: Leg{Native: invested, EUR: invested.Mul(rate)},
	}

	// Safety check: the parts must add back up to the whole
	if !split.Cash.Native.Add(split.Invested.Native).Equal(split.Total.Native) {
		return nil, errors.New("cash and invested value do not add up to total value")
	}
	if !split.Cash.EUR.Add(split.Invested.EUR).Equal(split.Total.EUR) {
		return nil, errors.New("cash and invested EUR value do not add up to total EUR value")
	}

	return split, nil
}

// Percentage returns part as a percentage of total rounded to 2 decimal places.
// A zero total yields zero rather than a division error.
func Percentage(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Div(total).Mul(hundred).Round(2)
}
