package sqlstore

import (
	"context"

	"github.com/simaogato/networth-backend/internal/domain"
)

// Store implements domain.Store on top of a SQL database
type Store struct {
	db *DB
}

// NewStore creates a store over an open connection
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func reposFor(c *conn) domain.Repositories {
	return domain.Repositories{
		Institutions:     &institutionRepository{c: c},
		Accounts:         &accountRepository{c: c},
		Snapshots:        &snapshotRepository{c: c},
		BrokerageEntries: &brokerageEntryRepository{c: c},
		ExchangeRates:    &exchangeRateRepository{c: c},
	}
}

// Repos returns repositories that run each statement in its own implicit transaction
func (s *Store) Repos() domain.Repositories {
	return reposFor(&conn{q: s.db.DB, dialect: s.db.dialect})
}

// WithinTx runs fn inside one database transaction
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, reposFor(&conn{q: tx, dialect: s.db.dialect})); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit transaction", err)
	}
	return nil
}
