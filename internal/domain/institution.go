package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Institution is a bank, broker or provider that holds accounts for an owner
type Institution struct {
	ID           uuid.UUID
	OwnerID      string
	Name         string
	Category     string // free-form grouping, e.g. "bank" or "pension"
	DisplayOrder int
	CreatedAt    time.Time
}

// Validate ensures the institution adheres to domain rules
func (i *Institution) Validate() error {
	if strings.TrimSpace(i.OwnerID) == "" {
		return NewValidationError("ownerId", "cannot be empty")
	}
	if strings.TrimSpace(i.Name) == "" {
		return NewValidationError("name", "institution name cannot be empty")
	}
	return nil
}
