package registration

import (
	"sort"
	"sync"

	"github.com/rickgao/lot-watch/internal/model"
)

// Registry is the source of truth for auction registrations.
type Registry struct {
	mu sync.RWMutex

	// All known registrations indexed by auction row_id. A nil value marks
	// an auction seen without registration data.
	entries map[int64]*model.AuctionRegistration
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[int64]*model.AuctionRegistration),
	}
}

// Lookup returns the shared registration for an auction. Entries seeded
// with nil are reported as absent.
func (r *Registry) Lookup(auctionID int64) (*model.AuctionRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[auctionID]
	if !ok || reg == nil {
		return nil, false
	}
	return reg, true
}

// Seed records reg as the registration for an auction, replacing any
// earlier entry. reg may be nil.
func (r *Registry) Seed(auctionID int64, reg *model.AuctionRegistration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[auctionID] = reg
}

// Merge folds update into the shared registration and returns it. When
// the auction has no registration yet, update becomes the shared one.
func (r *Registry) Merge(auctionID int64, update *model.AuctionRegistration) *model.AuctionRegistration {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.entries[auctionID]
	if existing == nil {
		r.entries[auctionID] = update
		return update
	}
	existing.MergeFrom(update)
	return existing
}

// Len returns the number of auctions with a non-nil registration.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, reg := range r.entries {
		if reg != nil {
			n++
		}
	}
	return n
}

// Snapshot returns copies of all non-nil registrations ordered by auction id.
func (r *Registry) Snapshot() []model.AuctionRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.entries))
	for id, reg := range r.entries {
		if reg != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]model.AuctionRegistration, 0, len(ids))
	for _, id := range ids {
		reg := *r.entries[id]
		if reg.AuctionID == 0 {
			reg.AuctionID = id
		}
		result = append(result, reg)
	}
	return result
}
