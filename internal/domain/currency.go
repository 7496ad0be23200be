package domain

import (
	"strings"

	"github.com/Rhymond/go-money"
)

// Currency is an ISO-4217 currency code in upper case
type Currency string

// EUR is the reporting currency every value is normalised to
const EUR Currency = "EUR"

// ParseCurrency normalises code and checks it against the ISO-4217 table
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Validate returns a ValidationError for codes that are not known currencies
func (c Currency) Validate() error {
	if len(c) != 3 {
		return NewValidationError("currency", "must be a 3-letter ISO-4217 code")
	}
	if money.GetCurrency(string(c)) == nil {
		return NewValidationError("currency", "unknown currency "+string(c))
	}
	return nil
}

func (c Currency) String() string {
	return string(c)
}
