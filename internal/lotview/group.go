package lotview

import (
	"sync"

	"github.com/samber/lo"

	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/registration"
)

// Keys of the two groups that are not either-or groups.
const (
	SingleBidKey = "singleBid"
	LiveBidKey   = "liveBid"
)

// BidGroup is a set of lots the bidder bid on together.
type BidGroup struct {
	Key          string
	GroupID      string // Empty for the single and live groups
	Label        string
	Submittable  bool
	Deletable    bool
	Quantityable bool
	TempQuantity int // Quantity as edited; 0 when not quantityable
	Quantity     int // Quantity as stored on the server
	OrderField   string
}

// Grouper resolves the bid group of a lot. Groups are cached by key for
// the lifetime of the page; call Reset when the page is replaced.
type Grouper struct {
	registry     *registration.Registry
	groupBidding bool

	mu     sync.Mutex
	groups map[string]*BidGroup
}

// NewGrouper creates a Grouper reading either-or groups from registry.
func NewGrouper(registry *registration.Registry, groupBidding bool) *Grouper {
	return &Grouper{
		registry:     registry,
		groupBidding: groupBidding,
		groups:       make(map[string]*BidGroup),
	}
}

// Reset drops all cached groups.
func (g *Grouper) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.groups = make(map[string]*BidGroup)
}

// LotGroup returns the group of the lot's current bid, or nil when the lot
// has no bid.
func (g *Grouper) LotGroup(lot *model.LotRecord) *BidGroup {
	if lot == nil {
		return nil
	}
	bid := lot.CurrentBid()
	if bid == nil {
		return nil
	}

	key := groupKey(bid)

	g.mu.Lock()
	defer g.mu.Unlock()

	if group, ok := g.groups[key]; ok {
		return group
	}

	group := &BidGroup{Key: key}
	switch key {
	case SingleBidKey:
		group.Label = "Absentee Bids"
		if g.groupBidding {
			group.Label = "Single Bids"
		}
	case LiveBidKey:
		group.Label = "Live Bids"
	default:
		group.GroupID = key
		group.Submittable = true
		group.Deletable = true
		group.Quantityable = true
		group.OrderField = key
		group.Quantity = 1
		group.Label = "Group " + key

		if details, ok := g.details(lot.AuctionID(), key); ok {
			if details.MaxQuantity > 0 {
				group.Quantity = details.MaxQuantity
			}
			if details.Label != "" {
				group.Label = details.Label
			}
		}
		group.TempQuantity = group.Quantity
	}

	// Pending bids get a submit button.
	if bid.Type == model.BidTypeAbsentee && !bid.Confirmed {
		group.Submittable = true
	}

	g.groups[key] = group
	return group
}

func (g *Grouper) details(auctionID int64, groupID string) (*model.EitherOrGroup, bool) {
	if g.registry == nil || auctionID == 0 {
		return nil, false
	}
	reg, ok := g.registry.Lookup(auctionID)
	if !ok {
		return nil, false
	}
	return reg.Group(groupID)
}

func groupKey(bid *model.Bid) string {
	if bid.GroupID != nil && *bid.GroupID != "" {
		return *bid.GroupID
	}
	if bid.Type == model.BidTypeLive {
		return LiveBidKey
	}
	return SingleBidKey
}

// NumLotsInGroup counts the lots of c whose bid falls in group.
func (g *Grouper) NumLotsInGroup(c *model.LotCollection, group *BidGroup) int {
	if c == nil || group == nil {
		return 0
	}
	return lo.CountBy(c.ResultPage, func(lot *model.LotRecord) bool {
		lg := g.LotGroup(lot)
		return lg != nil && lg.Key == group.Key
	})
}

// IsFirstLotInGroup reports whether lot is the first lot of c in group.
func (g *Grouper) IsFirstLotInGroup(lot *model.LotRecord, c *model.LotCollection, group *BidGroup) bool {
	if lot == nil || c == nil || group == nil {
		return false
	}
	first, ok := lo.Find(c.ResultPage, func(l *model.LotRecord) bool {
		lg := g.LotGroup(l)
		return lg != nil && lg.Key == group.Key
	})
	return ok && first.RowID == lot.RowID
}
