package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBrokerageEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   BrokerageEntry
		wantErr bool
		errMsg  string
	}{
		{
			name: "Cash below total should pass",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				Date:       time.Now(),
				TotalValue: decimal.NewFromInt(1000),
				CashValue:  decimal.NewFromInt(200),
				Currency:   "GBP",
			},
		},
		{
			name: "All cash should pass",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				TotalValue: decimal.NewFromInt(1000),
				CashValue:  decimal.NewFromInt(1000),
				Currency:   "EUR",
			},
		},
		{
			name: "Empty brokerage should pass",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				TotalValue: decimal.Zero,
				CashValue:  decimal.Zero,
				Currency:   "EUR",
			},
		},
		{
			name: "Cash above total should fail",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				TotalValue: decimal.NewFromInt(100),
				CashValue:  decimal.NewFromInt(200),
				Currency:   "EUR",
			},
			wantErr: true,
			errMsg:  "cash value cannot exceed total value",
		},
		{
			name: "Negative cash should fail",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				TotalValue: decimal.NewFromInt(100),
				CashValue:  decimal.NewFromInt(-1),
				Currency:   "EUR",
			},
			wantErr: true,
			errMsg:  "cashValue",
		},
		{
			name: "Negative total should fail",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				TotalValue: decimal.NewFromInt(-100),
				CashValue:  decimal.Zero,
				Currency:   "EUR",
			},
			wantErr: true,
			errMsg:  "totalValue",
		},
		{
			name: "Bad currency should fail",
			entry: BrokerageEntry{
				AccountID:  uuid.New(),
				TotalValue: decimal.NewFromInt(100),
				CashValue:  decimal.Zero,
				Currency:   "ZZ",
			},
			wantErr: true,
			errMsg:  "currency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBrokerageEntry_InvestedValue(t *testing.T) {
	entry := BrokerageEntry{
		TotalValue: decimal.RequireFromString("1000.10"),
		CashValue:  decimal.RequireFromString("200.05"),
	}
	assert.True(t, entry.InvestedValue().Equal(decimal.RequireFromString("800.05")))
}
