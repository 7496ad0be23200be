package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
)

type brokerageEntryRepository struct {
	c *conn
}

// NewBrokerageEntryRepository creates a new SQL brokerage entry repository
func NewBrokerageEntryRepository(db *DB) domain.BrokerageEntryRepository {
	return &brokerageEntryRepository{c: &conn{q: db.DB, dialect: db.dialect}}
}

func (r *brokerageEntryRepository) Upsert(ctx context.Context, entry *domain.BrokerageEntry) error {
	entry.Date = domain.Day(entry.Date)

	query := `
		INSERT INTO brokerage_entries (id, account_id, date, total_value, cash_value, currency)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, date) DO UPDATE SET
			total_value = excluded.total_value,
			cash_value = excluded.cash_value,
			currency = excluded.currency
		RETURNING id
	`
	err := r.c.queryRow(ctx, query,
		entry.ID,
		entry.AccountID,
		dayParam(entry.Date),
		entry.TotalValue.String(),
		entry.CashValue.String(),
		string(entry.Currency),
	).Scan(&entry.ID)
	if err != nil {
		return domain.NewStorageError("upsert brokerage entry", err)
	}
	return nil
}

func (r *brokerageEntryRepository) List(ctx context.Context, ownerID string, accountID uuid.UUID, from, to time.Time) ([]*domain.BrokerageEntry, error) {
	w := &whereClause{}
	w.add("a.owner_id = ?", ownerID)
	w.add("e.account_id = ?", accountID)
	if !from.IsZero() {
		w.add("e.date >= ?", dayParam(from))
	}
	if !to.IsZero() {
		w.add("e.date <= ?", dayParam(to))
	}

	query := `SELECT e.id, e.account_id, CAST(e.date AS TEXT), e.total_value, e.cash_value, e.currency
		FROM brokerage_entries e
		JOIN accounts a ON a.id = e.account_id` + w.where() + `
		ORDER BY e.date`

	rows, err := r.c.query(ctx, query, w.args...)
	if err != nil {
		return nil, domain.NewStorageError("list brokerage entries", err)
	}
	defer rows.Close()

	entries := []*domain.BrokerageEntry{}
	for rows.Next() {
		var (
			e                          domain.BrokerageEntry
			dateStr, totalStr, cashStr string
			currency                   string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &dateStr, &totalStr, &cashStr, &currency); err != nil {
			return nil, domain.NewStorageError("list brokerage entries", err)
		}
		if e.Date, err = parseDay(dateStr); err != nil {
			return nil, domain.NewStorageError("list brokerage entries", err)
		}
		if e.TotalValue, err = parseDecimal("total_value", totalStr); err != nil {
			return nil, domain.NewStorageError("list brokerage entries", err)
		}
		if e.CashValue, err = parseDecimal("cash_value", cashStr); err != nil {
			return nil, domain.NewStorageError("list brokerage entries", err)
		}
		e.Currency = domain.Currency(currency)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list brokerage entries", err)
	}
	return entries, nil
}

func (r *brokerageEntryRepository) DeleteByAccount(ctx context.Context, ownerID string, accountID uuid.UUID) error {
	if err := accountOwned(ctx, r.c, ownerID, accountID); err != nil {
		return err
	}
	if _, err := r.c.exec(ctx, `DELETE FROM brokerage_entries WHERE account_id = $1`, accountID); err != nil {
		return domain.NewStorageError("delete brokerage entries", fmt.Errorf("account %s: %w", accountID, err))
	}
	return nil
}
