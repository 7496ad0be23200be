package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
)

var errDuplicateChild = errors.New("derived account of this type already exists for parent")

func copyAccount(a domain.Account) *domain.Account {
	if a.ParentAccountID != nil {
		p := *a.ParentAccountID
		a.ParentAccountID = &p
	}
	return &a
}

func copySnapshot(s domain.AccountSnapshot) *domain.AccountSnapshot {
	if s.ExchangeRate != nil {
		r := *s.ExchangeRate
		s.ExchangeRate = &r
	}
	return &s
}

func inRange(day, from, to time.Time) bool {
	if !from.IsZero() && day.Before(domain.Day(from)) {
		return false
	}
	if !to.IsZero() && day.After(domain.Day(to)) {
		return false
	}
	return true
}

type institutionRepo struct {
	v   view
	now func() time.Time
}

func (r *institutionRepo) Create(_ context.Context, inst *domain.Institution) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = r.now().UTC()
	}
	stored := *inst
	return r.v.write(func(st *state) error {
		st.institutions[stored.ID] = stored
		return nil
	})
}

func (r *institutionRepo) GetByID(_ context.Context, ownerID string, id uuid.UUID) (*domain.Institution, error) {
	var (
		inst domain.Institution
		ok   bool
	)
	r.v.read(func(st *state) {
		inst, ok = st.institutions[id]
	})
	if !ok || inst.OwnerID != ownerID {
		return nil, fmt.Errorf("institution %s: %w", id, domain.ErrNotFound)
	}
	return &inst, nil
}

func (r *institutionRepo) List(_ context.Context, ownerID string) ([]*domain.Institution, error) {
	out := []*domain.Institution{}
	r.v.read(func(st *state) {
		for _, inst := range st.institutions {
			if inst.OwnerID == ownerID {
				inst := inst
				out = append(out, &inst)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *institutionRepo) Update(_ context.Context, inst *domain.Institution) error {
	return r.v.write(func(st *state) error {
		stored, ok := st.institutions[inst.ID]
		if !ok || stored.OwnerID != inst.OwnerID {
			return fmt.Errorf("institution %s: %w", inst.ID, domain.ErrNotFound)
		}
		stored.Name = inst.Name
		stored.Category = inst.Category
		stored.DisplayOrder = inst.DisplayOrder
		st.institutions[inst.ID] = stored
		return nil
	})
}

func (r *institutionRepo) Delete(_ context.Context, ownerID string, id uuid.UUID) error {
	return r.v.write(func(st *state) error {
		inst, ok := st.institutions[id]
		if !ok || inst.OwnerID != ownerID {
			return fmt.Errorf("institution %s: %w", id, domain.ErrNotFound)
		}
		delete(st.institutions, id)
		return nil
	})
}

type accountRepo struct {
	v view
}

func (r *accountRepo) Create(_ context.Context, account *domain.Account) error {
	stored := *copyAccount(*account)
	return r.v.write(func(st *state) error {
		if stored.ParentAccountID != nil {
			for _, a := range st.accounts {
				if a.ParentAccountID != nil && *a.ParentAccountID == *stored.ParentAccountID && a.Type == stored.Type {
					return domain.NewStorageError("create account", errDuplicateChild)
				}
			}
		}
		st.accounts[stored.ID] = stored
		return nil
	})
}

func (r *accountRepo) GetByID(_ context.Context, ownerID string, id uuid.UUID) (*domain.Account, error) {
	var (
		a  domain.Account
		ok bool
	)
	r.v.read(func(st *state) {
		a, ok = st.ownedAccount(ownerID, id)
	})
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return copyAccount(a), nil
}

// GetForUpdate needs no lock: transactions are already serialised
func (r *accountRepo) GetForUpdate(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Account, error) {
	return r.GetByID(ctx, ownerID, id)
}

func (r *accountRepo) List(_ context.Context, ownerID string, filter domain.AccountFilter) ([]*domain.Account, error) {
	out := []*domain.Account{}
	instOrder := map[uuid.UUID]domain.Institution{}
	r.v.read(func(st *state) {
		for _, a := range st.accounts {
			if a.OwnerID != ownerID {
				continue
			}
			if !filter.IncludeInactive && !a.IsActive {
				continue
			}
			if filter.InstitutionID != nil && a.InstitutionID != *filter.InstitutionID {
				continue
			}
			out = append(out, copyAccount(a))
			instOrder[a.InstitutionID] = st.institutions[a.InstitutionID]
		}
	})
	sort.Slice(out, func(i, j int) bool {
		ii, ij := instOrder[out[i].InstitutionID], instOrder[out[j].InstitutionID]
		if ii.DisplayOrder != ij.DisplayOrder {
			return ii.DisplayOrder < ij.DisplayOrder
		}
		if ii.Name != ij.Name {
			return ii.Name < ij.Name
		}
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *accountRepo) ListChildren(_ context.Context, ownerID string, parentID uuid.UUID) ([]*domain.Account, error) {
	out := []*domain.Account{}
	r.v.read(func(st *state) {
		for _, a := range st.accounts {
			if a.OwnerID == ownerID && a.ParentAccountID != nil && *a.ParentAccountID == parentID {
				out = append(out, copyAccount(a))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayOrder < out[j].DisplayOrder })
	return out, nil
}

func (r *accountRepo) ShiftDisplayOrder(_ context.Context, ownerID string, institutionID uuid.UUID, after, by int) error {
	return r.v.write(func(st *state) error {
		for id, a := range st.accounts {
			if a.OwnerID == ownerID && a.InstitutionID == institutionID && a.DisplayOrder > after {
				a.DisplayOrder += by
				st.accounts[id] = a
			}
		}
		return nil
	})
}

func (r *accountRepo) SetActive(_ context.Context, ownerID string, id uuid.UUID, active bool) error {
	return r.v.write(func(st *state) error {
		a, ok := st.ownedAccount(ownerID, id)
		if !ok {
			return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
		a.IsActive = active
		st.accounts[id] = a
		return nil
	})
}

func (r *accountRepo) Update(_ context.Context, account *domain.Account) error {
	return r.v.write(func(st *state) error {
		a, ok := st.ownedAccount(account.OwnerID, account.ID)
		if !ok {
			return fmt.Errorf("account %s: %w", account.ID, domain.ErrNotFound)
		}
		a.Name = account.Name
		a.Type = account.Type
		a.Currency = account.Currency
		a.DisplayOrder = account.DisplayOrder
		st.accounts[account.ID] = a
		return nil
	})
}

func (r *accountRepo) Delete(_ context.Context, ownerID string, id uuid.UUID) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.ownedAccount(ownerID, id); !ok {
			return fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
		}
		delete(st.accounts, id)
		return nil
	})
}

type snapshotRepo struct {
	v view
}

func (r *snapshotRepo) Upsert(_ context.Context, snapshot *domain.AccountSnapshot) error {
	snapshot.Date = domain.Day(snapshot.Date)
	key := dayKey{accountID: snapshot.AccountID, day: domain.FormatDay(snapshot.Date)}
	return r.v.write(func(st *state) error {
		if existing, ok := st.snapshots[key]; ok {
			snapshot.ID = existing.ID
		}
		st.snapshots[key] = *copySnapshot(*snapshot)
		return nil
	})
}

func (r *snapshotRepo) Get(_ context.Context, ownerID string, accountID uuid.UUID, date time.Time) (*domain.AccountSnapshot, error) {
	var (
		s  domain.AccountSnapshot
		ok bool
	)
	r.v.read(func(st *state) {
		if _, owned := st.ownedAccount(ownerID, accountID); owned {
			s, ok = st.snapshots[dayKey{accountID: accountID, day: domain.FormatDay(date)}]
		}
	})
	if !ok {
		return nil, fmt.Errorf("snapshot %s@%s: %w", accountID, domain.FormatDay(date), domain.ErrNotFound)
	}
	return copySnapshot(s), nil
}

func (r *snapshotRepo) List(_ context.Context, ownerID string, q domain.SnapshotQuery) ([]*domain.AccountSnapshot, error) {
	out := []*domain.AccountSnapshot{}
	r.v.read(func(st *state) {
		for _, s := range st.snapshots {
			a, ok := st.ownedAccount(ownerID, s.AccountID)
			if !ok || (!q.IncludeInactive && !a.IsActive) {
				continue
			}
			if q.AccountID != nil && s.AccountID != *q.AccountID {
				continue
			}
			if !inRange(s.Date, q.From, q.To) {
				continue
			}
			out = append(out, copySnapshot(s))
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			if q.Descending {
				return out[i].Date.After(out[j].Date)
			}
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].AccountID.String() < out[j].AccountID.String()
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *snapshotRepo) Latest(_ context.Context, ownerID string, at time.Time, includeInactive bool) ([]*domain.AccountSnapshot, error) {
	day := domain.Day(at)
	latest := map[uuid.UUID]domain.AccountSnapshot{}
	r.v.read(func(st *state) {
		for _, s := range st.snapshots {
			a, ok := st.ownedAccount(ownerID, s.AccountID)
			if !ok || (!includeInactive && !a.IsActive) || s.Date.After(day) {
				continue
			}
			if cur, seen := latest[s.AccountID]; !seen || s.Date.After(cur.Date) {
				latest[s.AccountID] = s
			}
		}
	})
	out := make([]*domain.AccountSnapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, copySnapshot(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID.String() < out[j].AccountID.String() })
	return out, nil
}

func (r *snapshotRepo) Delete(_ context.Context, ownerID string, accountID uuid.UUID, date time.Time) error {
	key := dayKey{accountID: accountID, day: domain.FormatDay(date)}
	return r.v.write(func(st *state) error {
		if _, ok := st.ownedAccount(ownerID, accountID); !ok {
			return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
		}
		if _, ok := st.snapshots[key]; !ok {
			return fmt.Errorf("snapshot %s@%s: %w", accountID, key.day, domain.ErrNotFound)
		}
		delete(st.snapshots, key)
		return nil
	})
}

func (r *snapshotRepo) DeleteByAccount(_ context.Context, ownerID string, accountID uuid.UUID) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.ownedAccount(ownerID, accountID); !ok {
			return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
		}
		for k := range st.snapshots {
			if k.accountID == accountID {
				delete(st.snapshots, k)
			}
		}
		return nil
	})
}

type entryRepo struct {
	v view
}

func (r *entryRepo) Upsert(_ context.Context, entry *domain.BrokerageEntry) error {
	entry.Date = domain.Day(entry.Date)
	key := dayKey{accountID: entry.AccountID, day: domain.FormatDay(entry.Date)}
	return r.v.write(func(st *state) error {
		if existing, ok := st.entries[key]; ok {
			entry.ID = existing.ID
		}
		st.entries[key] = *entry
		return nil
	})
}

func (r *entryRepo) List(_ context.Context, ownerID string, accountID uuid.UUID, from, to time.Time) ([]*domain.BrokerageEntry, error) {
	out := []*domain.BrokerageEntry{}
	r.v.read(func(st *state) {
		if _, ok := st.ownedAccount(ownerID, accountID); !ok {
			return
		}
		for k, e := range st.entries {
			if k.accountID == accountID && inRange(e.Date, from, to) {
				e := e
				out = append(out, &e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *entryRepo) DeleteByAccount(_ context.Context, ownerID string, accountID uuid.UUID) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.ownedAccount(ownerID, accountID); !ok {
			return fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
		}
		for k := range st.entries {
			if k.accountID == accountID {
				delete(st.entries, k)
			}
		}
		return nil
	})
}

type rateRepo struct {
	v view
}

func (r *rateRepo) Get(_ context.Context, date time.Time, from, to domain.Currency) (*domain.ExchangeRate, error) {
	var (
		rate domain.ExchangeRate
		ok   bool
	)
	r.v.read(func(st *state) {
		rate, ok = st.rates[rateKey{day: domain.FormatDay(date), from: from, to: to}]
	})
	if !ok {
		return nil, fmt.Errorf("rate %s->%s@%s: %w", from, to, domain.FormatDay(date), domain.ErrNotFound)
	}
	return &rate, nil
}

func (r *rateRepo) Save(_ context.Context, rate *domain.ExchangeRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}
	rate.Date = domain.Day(rate.Date)
	key := rateKey{day: domain.FormatDay(rate.Date), from: rate.From, to: rate.To}
	return r.v.write(func(st *state) error {
		if existing, ok := st.rates[key]; ok {
			rate.ID = existing.ID
		}
		st.rates[key] = *rate
		return nil
	})
}

func (r *rateRepo) LatestOnOrBefore(_ context.Context, from, to domain.Currency, date time.Time) (*domain.ExchangeRate, error) {
	day := domain.Day(date)
	var (
		best  domain.ExchangeRate
		found bool
	)
	r.v.read(func(st *state) {
		for k, rate := range st.rates {
			if k.from != from || k.to != to || rate.Date.After(day) {
				continue
			}
			if !found || rate.Date.After(best.Date) {
				best, found = rate, true
			}
		}
	})
	if !found {
		return nil, fmt.Errorf("rate %s->%s on or before %s: %w", from, to, domain.FormatDay(day), domain.ErrNotFound)
	}
	return &best, nil
}

func (r *rateRepo) Latest(_ context.Context) ([]*domain.ExchangeRate, error) {
	type pair struct{ from, to domain.Currency }
	latest := map[pair]domain.ExchangeRate{}
	r.v.read(func(st *state) {
		for k, rate := range st.rates {
			p := pair{k.from, k.to}
			if cur, ok := latest[p]; !ok || rate.Date.After(cur.Date) {
				latest[p] = rate
			}
		}
	})
	out := make([]*domain.ExchangeRate, 0, len(latest))
	for _, rate := range latest {
		rate := rate
		out = append(out, &rate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out, nil
}
