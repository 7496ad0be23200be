package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
)

type accountRepository struct {
	c *conn
}

// NewAccountRepository creates a new SQL account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{c: &conn{q: db.DB, dialect: db.dialect}}
}

const accountColumns = `a.id, a.owner_id, a.institution_id, a.name, a.type, a.currency, a.is_active, a.display_order, a.parent_account_id, a.is_derived`

func (r *accountRepository) Create(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, owner_id, institution_id, name, type, currency, is_active, display_order, parent_account_id, is_derived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// Handle nullable parent_account_id
	var parentID interface{}
	if account.ParentAccountID != nil {
		parentID = account.ParentAccountID.String()
	}

	_, err := r.c.exec(ctx, query,
		account.ID,
		account.OwnerID,
		account.InstitutionID,
		account.Name,
		string(account.Type),
		string(account.Currency),
		account.IsActive,
		account.DisplayOrder,
		parentID,
		account.IsDerived,
	)
	if err != nil {
		return domain.NewStorageError("create account", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Account, error) {
	return r.get(ctx, ownerID, id, false)
}

func (r *accountRepository) GetForUpdate(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Account, error) {
	return r.get(ctx, ownerID, id, true)
}

func (r *accountRepository) get(ctx context.Context, ownerID string, id uuid.UUID, lock bool) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts a WHERE a.id = $1 AND a.owner_id = $2`
	if lock {
		query = r.c.forUpdate(query)
	}

	account, err := scanAccount(r.c.queryRow(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get account", err)
	}
	return account, nil
}

func (r *accountRepository) List(ctx context.Context, ownerID string, filter domain.AccountFilter) ([]*domain.Account, error) {
	f := &whereClause{}
	f.add("a.owner_id = ?", ownerID)
	if !filter.IncludeInactive {
		f.raw("a.is_active = TRUE")
	}
	if filter.InstitutionID != nil {
		f.add("a.institution_id = ?", *filter.InstitutionID)
	}

	query := `SELECT ` + accountColumns + `
		FROM accounts a
		JOIN institutions i ON i.id = a.institution_id` +
		f.where() + `
		ORDER BY i.display_order, i.name, a.display_order, a.name`

	return r.list(ctx, "list accounts", query, f.args...)
}

func (r *accountRepository) ListChildren(ctx context.Context, ownerID string, parentID uuid.UUID) ([]*domain.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts a
		WHERE a.owner_id = $1 AND a.parent_account_id = $2
		ORDER BY a.display_order`

	return r.list(ctx, "list child accounts", query, ownerID, parentID)
}

func (r *accountRepository) list(ctx context.Context, op, query string, args ...any) ([]*domain.Account, error) {
	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	defer rows.Close()

	accounts := []*domain.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, domain.NewStorageError(op, err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return accounts, nil
}

func (r *accountRepository) ShiftDisplayOrder(ctx context.Context, ownerID string, institutionID uuid.UUID, after, by int) error {
	query := `
		UPDATE accounts SET display_order = display_order + $1
		WHERE owner_id = $2 AND institution_id = $3 AND display_order > $4
	`
	if _, err := r.c.exec(ctx, query, by, ownerID, institutionID, after); err != nil {
		return domain.NewStorageError("shift display order", err)
	}
	return nil
}

func (r *accountRepository) SetActive(ctx context.Context, ownerID string, id uuid.UUID, active bool) error {
	result, err := r.c.exec(ctx, `UPDATE accounts SET is_active = $1 WHERE id = $2 AND owner_id = $3`, active, id, ownerID)
	if err != nil {
		return domain.NewStorageError("set account active", err)
	}
	return expectRows(result, "set account active", fmt.Sprintf("account %s", id))
}

func (r *accountRepository) Update(ctx context.Context, account *domain.Account) error {
	query := `
		UPDATE accounts SET name = $1, type = $2, currency = $3, display_order = $4
		WHERE id = $5 AND owner_id = $6
	`
	result, err := r.c.exec(ctx, query,
		account.Name,
		string(account.Type),
		string(account.Currency),
		account.DisplayOrder,
		account.ID,
		account.OwnerID,
	)
	if err != nil {
		return domain.NewStorageError("update account", err)
	}
	return expectRows(result, "update account", fmt.Sprintf("account %s", account.ID))
}

func (r *accountRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	result, err := r.c.exec(ctx, `DELETE FROM accounts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return domain.NewStorageError("delete account", err)
	}
	return expectRows(result, "delete account", fmt.Sprintf("account %s", id))
}

func scanAccount(s scanner) (*domain.Account, error) {
	var (
		a         domain.Account
		accType   string
		currency  string
		parentStr sql.NullString
	)
	err := s.Scan(
		&a.ID,
		&a.OwnerID,
		&a.InstitutionID,
		&a.Name,
		&accType,
		&currency,
		&a.IsActive,
		&a.DisplayOrder,
		&parentStr,
		&a.IsDerived,
	)
	if err != nil {
		return nil, err
	}

	a.Type = domain.AccountType(accType)
	a.Currency = domain.Currency(currency)

	if parentStr.Valid {
		parentID, err := uuid.Parse(parentStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse parent account ID: %w", err)
		}
		a.ParentAccountID = &parentID
	}
	return &a, nil
}
