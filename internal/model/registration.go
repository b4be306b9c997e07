package model

// AuctionRegistration is a bidder's registration and deposit state for one
// auction. All lots of the auction share one instance.
type AuctionRegistration struct {
	AuctionID            int64     `json:"auction_id"`
	Status               string    `json:"status,omitempty"`
	Approved             bool      `json:"approved"`
	Deposit              float64   `json:"deposit"`
	AuthorizedDeposit    float64   `json:"authorized_deposit,omitempty"`
	TotalAppliedDeposits float64   `json:"total_applied_deposits"`
	EitherOr             *EitherOr `json:"either_or,omitempty"`
}

// EitherOr holds the named either-or bid groups of a registration.
type EitherOr struct {
	Groups map[string]*EitherOrGroup `json:"groups"`
}

// EitherOrGroup limits how many lots of a group the bidder may win.
type EitherOrGroup struct {
	Label       string `json:"label,omitempty"`
	MaxQuantity int    `json:"max_quantity"`
}

// MergeFrom copies other into r in place so every lot holding r sees the
// update. Scalars are overwritten; either-or groups are merged by id.
func (r *AuctionRegistration) MergeFrom(other *AuctionRegistration) {
	if other == nil {
		return
	}
	if other.AuctionID != 0 {
		r.AuctionID = other.AuctionID
	}
	r.Status = other.Status
	r.Approved = other.Approved
	r.Deposit = other.Deposit
	r.AuthorizedDeposit = other.AuthorizedDeposit
	r.TotalAppliedDeposits = other.TotalAppliedDeposits

	if other.EitherOr == nil {
		return
	}
	if r.EitherOr == nil {
		r.EitherOr = &EitherOr{}
	}
	if r.EitherOr.Groups == nil {
		r.EitherOr.Groups = make(map[string]*EitherOrGroup, len(other.EitherOr.Groups))
	}
	for id, g := range other.EitherOr.Groups {
		if g == nil {
			continue
		}
		if existing, ok := r.EitherOr.Groups[id]; ok && existing != nil {
			*existing = *g
			continue
		}
		gCopy := *g
		r.EitherOr.Groups[id] = &gCopy
	}
}

// Group returns the either-or group with the given id.
func (r *AuctionRegistration) Group(groupID string) (*EitherOrGroup, bool) {
	if r == nil || r.EitherOr == nil {
		return nil, false
	}
	g, ok := r.EitherOr.Groups[groupID]
	return g, ok && g != nil
}
