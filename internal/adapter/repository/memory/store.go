// Package memory is an in-process implementation of domain.Store.
// A transaction works on a private copy of the data that replaces the shared
// copy only when the callback succeeds, so failed transactions leave no trace.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
)

type dayKey struct {
	accountID uuid.UUID
	day       string
}

type rateKey struct {
	day  string
	from domain.Currency
	to   domain.Currency
}

type state struct {
	institutions map[uuid.UUID]domain.Institution
	accounts     map[uuid.UUID]domain.Account
	snapshots    map[dayKey]domain.AccountSnapshot
	entries      map[dayKey]domain.BrokerageEntry
	rates        map[rateKey]domain.ExchangeRate
}

func newState() *state {
	return &state{
		institutions: make(map[uuid.UUID]domain.Institution),
		accounts:     make(map[uuid.UUID]domain.Account),
		snapshots:    make(map[dayKey]domain.AccountSnapshot),
		entries:      make(map[dayKey]domain.BrokerageEntry),
		rates:        make(map[rateKey]domain.ExchangeRate),
	}
}

// clone copies the maps; stored values are never mutated in place, so sharing them is safe
func (s *state) clone() *state {
	c := &state{
		institutions: make(map[uuid.UUID]domain.Institution, len(s.institutions)),
		accounts:     make(map[uuid.UUID]domain.Account, len(s.accounts)),
		snapshots:    make(map[dayKey]domain.AccountSnapshot, len(s.snapshots)),
		entries:      make(map[dayKey]domain.BrokerageEntry, len(s.entries)),
		rates:        make(map[rateKey]domain.ExchangeRate, len(s.rates)),
	}
	for k, v := range s.institutions {
		c.institutions[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.rates {
		c.rates[k] = v
	}
	return c
}

// ownedAccount returns the account when it exists and belongs to ownerID
func (s *state) ownedAccount(ownerID string, id uuid.UUID) (domain.Account, bool) {
	a, ok := s.accounts[id]
	if !ok || a.OwnerID != ownerID {
		return domain.Account{}, false
	}
	return a, true
}

// view abstracts whether repositories act on the shared data or on a transaction's copy
type view interface {
	read(fn func(st *state))
	write(fn func(st *state) error) error
}

type liveView struct {
	store *Store
}

func (v liveView) read(fn func(st *state)) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	fn(v.store.state)
}

func (v liveView) write(fn func(st *state) error) error {
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type txView struct {
	st *state
}

func (v txView) read(fn func(st *state)) {
	fn(v.st)
}

func (v txView) write(fn func(st *state) error) error {
	return fn(v.st)
}

// Store keeps every record in memory. Writers are serialised; readers see
// only committed data.
type Store struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

func (s *Store) Repos() domain.Repositories {
	return s.repos(liveView{store: s})
}

// WithinTx runs fn against a private copy and publishes it when fn returns nil.
// fn must not start another transaction or write through Repos().
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("begin transaction", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, s.repos(txView{st: working})); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

func (s *Store) repos(v view) domain.Repositories {
	return domain.Repositories{
		Institutions:     &institutionRepo{v: v, now: s.now},
		Accounts:         &accountRepo{v: v},
		Snapshots:        &snapshotRepo{v: v},
		BrokerageEntries: &entryRepo{v: v},
		ExchangeRates:    &rateRepo{v: v},
	}
}
