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

type institutionRepository struct {
	c *conn
}

// NewInstitutionRepository creates a new SQL institution repository
func NewInstitutionRepository(db *DB) domain.InstitutionRepository {
	return &institutionRepository{c: &conn{q: db.DB, dialect: db.dialect}}
}

const institutionColumns = `id, owner_id, name, category, display_order, created_at`

func (r *institutionRepository) Create(ctx context.Context, inst *domain.Institution) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO institutions (id, owner_id, name, category, display_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.c.exec(ctx, query, inst.ID, inst.OwnerID, inst.Name, inst.Category, inst.DisplayOrder, inst.CreatedAt)
	if err != nil {
		return domain.NewStorageError("create institution", err)
	}
	return nil
}

func (r *institutionRepository) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Institution, error) {
	query := `SELECT ` + institutionColumns + ` FROM institutions WHERE id = $1 AND owner_id = $2`

	inst, err := scanInstitution(r.c.queryRow(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("institution %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, domain.NewStorageError("get institution", err)
	}
	return inst, nil
}

func (r *institutionRepository) List(ctx context.Context, ownerID string) ([]*domain.Institution, error) {
	query := `SELECT ` + institutionColumns + ` FROM institutions WHERE owner_id = $1 ORDER BY display_order, name`

	rows, err := r.c.query(ctx, query, ownerID)
	if err != nil {
		return nil, domain.NewStorageError("list institutions", err)
	}
	defer rows.Close()

	institutions := []*domain.Institution{}
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, domain.NewStorageError("list institutions", err)
		}
		institutions = append(institutions, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list institutions", err)
	}
	return institutions, nil
}

func (r *institutionRepository) Update(ctx context.Context, inst *domain.Institution) error {
	query := `
		UPDATE institutions SET name = $1, category = $2, display_order = $3
		WHERE id = $4 AND owner_id = $5
	`
	result, err := r.c.exec(ctx, query, inst.Name, inst.Category, inst.DisplayOrder, inst.ID, inst.OwnerID)
	if err != nil {
		return domain.NewStorageError("update institution", err)
	}
	return expectRows(result, "update institution", fmt.Sprintf("institution %s", inst.ID))
}

func (r *institutionRepository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	result, err := r.c.exec(ctx, `DELETE FROM institutions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return domain.NewStorageError("delete institution", err)
	}
	return expectRows(result, "delete institution", fmt.Sprintf("institution %s", id))
}

func scanInstitution(s scanner) (*domain.Institution, error) {
	var inst domain.Institution
	if err := s.Scan(&inst.ID, &inst.OwnerID, &inst.Name, &inst.Category, &inst.DisplayOrder, &inst.CreatedAt); err != nil {
		return nil, err
	}
	inst.CreatedAt = inst.CreatedAt.UTC()
	return &inst, nil
}

// expectRows turns a zero-row write into ErrNotFound
func expectRows(result sql.Result, op, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return domain.NewStorageError(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
