package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
)

type snapshotRepository struct {
	c *conn
}

// NewSnapshotRepository creates a new SQL snapshot repository
func NewSnapshotRepository(db *DB) domain.SnapshotRepository {
	return &snapshotRepository{c: &conn{q: db.DB, dialect: db.dialect}}
}

const snapshotColumns = `s.id, s.account_id, CAST(s.date AS TEXT), s.value, s.currency, s.value_eur, s.exchange_rate, s.note`

func (r *snapshotRepository) Upsert(ctx context.Context, snapshot *domain.AccountSnapshot) error {
	snapshot.Date = domain.Day(snapshot.Date)

	query := `
		INSERT INTO account_snapshots (id, account_id, date, value, currency, value_eur, exchange_rate, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, date) DO UPDATE SET
			value = excluded.value,
			currency = excluded.currency,
			value_eur = excluded.value_eur,
			exchange_rate = excluded.exchange_rate,
			note = excluded.note
		RETURNING id
	`

	var rate interface{}
	if snapshot.ExchangeRate != nil {
		rate = snapshot.ExchangeRate.String()
	}

	err := r.c.queryRow(ctx, query,
		snapshot.ID,
		snapshot.AccountID,
		dayParam(snapshot.Date),
		snapshot.Value.String(),
		string(snapshot.Currency),
		snapshot.ValueEUR.String(),
		rate,
		snapshot.Note,
	).Scan(&snapshot.ID)
	if err != nil {
		return domain.NewStorageError("upsert snapshot", err)
	}
	return nil
}

func (r *snapshotRepository) Get(ctx context.Context, ownerID string, accountID uuid.UUID, date time.Time) (*domain.AccountSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM account_snapshots s
		JOIN accounts a ON a.id = s.account_id
		WHERE a.owner_id = $1 AND s.account_id = $2 AND s.date = $3`

	snapshot, err := scanSnapshot(r.c.queryRow(ctx, query, ownerID, accountID, dayParam(date)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s@%s: %w", accountID, domain.FormatDay(date), domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get snapshot", err)
	}
	return snapshot, nil
}

func (r *snapshotRepository) List(ctx context.Context, ownerID string, q domain.SnapshotQuery) ([]*domain.AccountSnapshot, error) {
	w := &whereClause{}
	w.add("a.owner_id = ?", ownerID)
	if !q.IncludeInactive {
		w.raw("a.is_active = TRUE")
	}
	if q.AccountID != nil {
		w.add("s.account_id = ?", *q.AccountID)
	}
	if !q.From.IsZero() {
		w.add("s.date >= ?", dayParam(q.From))
	}
	if !q.To.IsZero() {
		w.add("s.date <= ?", dayParam(q.To))
	}

	order := " ORDER BY s.date, s.account_id"
	if q.Descending {
		order = " ORDER BY s.date DESC, s.account_id"
	}

	query := `SELECT ` + snapshotColumns + `
		FROM account_snapshots s
		JOIN accounts a ON a.id = s.account_id` + w.where() + order
	if q.Limit > 0 {
		query += " LIMIT " + w.next(q.Limit)
	}

	return r.list(ctx, "list snapshots", query, w.args...)
}

func (r *snapshotRepository) Latest(ctx context.Context, ownerID string, at time.Time, includeInactive bool) ([]*domain.AccountSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM account_snapshots s
		JOIN accounts a ON a.id = s.account_id
		WHERE a.owner_id = $1
		  AND s.date = (
			SELECT MAX(s2.date) FROM account_snapshots s2
			WHERE s2.account_id = s.account_id AND s2.date <= $2
		  )`
	if !includeInactive {
		query += ` AND a.is_active = TRUE`
	}
	query += ` ORDER BY s.account_id`

	return r.list(ctx, "latest snapshots", query, ownerID, dayParam(at))
}

func (r *snapshotRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.AccountSnapshot, error) {
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	defer rows.Close()

	snapshots := []*domain.AccountSnapshot{}
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, domain.NewStorageError(op, err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return snapshots, nil
}

func (r *snapshotRepository) Delete(ctx context.Context, ownerID string, accountID uuid.UUID, date time.Time) error {
	if err := r.checkOwner(ctx, ownerID, accountID); err != nil {
		return err
	}
	result, err := r.c.exec(ctx, `DELETE FROM account_snapshots WHERE account_id = $1 AND date = $2`, accountID, dayParam(date))
	if err != nil {
		return domain.NewStorageError("delete snapshot", err)
	}
	return expectRows(result, "delete snapshot", fmt.Sprintf("snapshot %s@%s", accountID, domain.FormatDay(date)))
}

func (r *snapshotRepository) DeleteByAccount(ctx context.Context, ownerID string, accountID uuid.UUID) error {
	if err := r.checkOwner(ctx, ownerID, accountID); err != nil {
		return err
	}
	if _, err := r.c.exec(ctx, `DELETE FROM account_snapshots WHERE account_id = $1`, accountID); err != nil {
		return domain.NewStorageError("delete account snapshots", err)
	}
	return nil
}

func (r *snapshotRepository) checkOwner(ctx context.Context, ownerID string, accountID uuid.UUID) error {
	return accountOwned(ctx, r.c, ownerID, accountID)
}

// accountOwned returns ErrNotFound unless the account exists and belongs to ownerID
func accountOwned(ctx context.Context, c *conn, ownerID string, accountID uuid.UUID) error {
	var one int
	err := c.queryRow(ctx, `SELECT 1 FROM accounts WHERE id = $1 AND owner_id = $2`, accountID, ownerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.NewStorageError("check account owner", err)
	}
	return nil
}

func scanSnapshot(s scanner) (*domain.AccountSnapshot, error) {
	var (
		snap                      domain.AccountSnapshot
		dateStr, valueStr, eurStr string
		currency                  string
		rateStr                   sql.NullString
	)
	err := s.Scan(&snap.ID, &snap.AccountID, &dateStr, &valueStr, &currency, &eurStr, &rateStr, &snap.Note)
	if err != nil {
		return nil, err
	}

	if snap.Date, err = parseDay(dateStr); err != nil {
		return nil, err
	}
	if snap.Value, err = parseDecimal("value", valueStr); err != nil {
		return nil, err
	}
	if snap.ValueEUR, err = parseDecimal("value_eur", eurStr); err != nil {
		return nil, err
	}
	snap.Currency = domain.Currency(currency)

	if rateStr.Valid {
		rate, err := parseDecimal("exchange_rate", rateStr.String)
		if err != nil {
			return nil, err
		}
		snap.ExchangeRate = &rate
	}
	return &snap, nil
}
