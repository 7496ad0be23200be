package portfolio

import (
	"github.com/google/uuid"

	"github.com/simaogato/networth-backend/internal/domain"
)

// collapseBrokerage removes double counting between a brokerage total and its
// derived children. A parent is dropped when a child holds a valuation at least
// as recent as the parent's; otherwise the older child valuations are dropped.
// For snapshots of a single day this means a parent with any valued child is
// represented by its children only.
func collapseBrokerage(accounts map[uuid.UUID]*domain.Account, snaps map[uuid.UUID]*domain.AccountSnapshot) map[uuid.UUID]*domain.AccountSnapshot {
	superseded := map[uuid.UUID]bool{}
	stale := map[uuid.UUID]bool{}

	for id, snap := range snaps {
		account, ok := accounts[id]
		if !ok || account.ParentAccountID == nil {
			continue
		}
		parentSnap, ok := snaps[*account.ParentAccountID]
		if !ok {
			continue
		}
		if snap.Date.Before(parentSnap.Date) {
			stale[id] = true
		} else {
			superseded[*account.ParentAccountID] = true
		}
	}

	out := make(map[uuid.UUID]*domain.AccountSnapshot, len(snaps))
	for id, snap := range snaps {
		if superseded[id] || stale[id] {
			continue
		}
		out[id] = snap
	}
	return out
}

func byAccount(snaps []*domain.AccountSnapshot) map[uuid.UUID]*domain.AccountSnapshot {
	out := make(map[uuid.UUID]*domain.AccountSnapshot, len(snaps))
	for _, s := range snaps {
		out[s.AccountID] = s
	}
	return out
}

func accountIndex(accounts []*domain.Account) map[uuid.UUID]*domain.Account {
	out := make(map[uuid.UUID]*domain.Account, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a
	}
	return out
}
