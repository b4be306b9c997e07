package lotview

import (
	"time"

	"github.com/samber/lo"

	"github.com/rickgao/lot-watch/internal/model"
)

// FirstAuctionLot returns the row_id of the first lot of the auction.
func FirstAuctionLot(auctionID int64, lots []*model.LotRecord) (int64, bool) {
	lot, ok := lo.Find(lots, func(l *model.LotRecord) bool {
		return l != nil && l.Auction != nil && l.Auction.RowID == auctionID
	})
	if !ok {
		return 0, false
	}
	return lot.RowID, true
}

// CountLotsInAuction counts the lots of the auction.
func CountLotsInAuction(auctionID int64, lots []*model.LotRecord) int {
	return lo.CountBy(lots, func(l *model.LotRecord) bool {
		return l != nil && l.Auction != nil && l.Auction.RowID == auctionID
	})
}

// IsLotInNewAuction reports whether the nearest earlier lot with an
// auction belongs to a different auction, or there is none.
func IsLotInNewAuction(lot *model.LotRecord, c *model.LotCollection) bool {
	return startsRun(lot, c, func(l *model.LotRecord) any {
		return l.Auction.RowID
	})
}

// IsLotInNewDate is IsLotInNewAuction by auction start day.
func IsLotInNewDate(lot *model.LotRecord, c *model.LotCollection) bool {
	return startsRun(lot, c, func(l *model.LotRecord) any {
		return dayOf(l.Auction.TimeStart)
	})
}

// IsLotInNewCounty is IsLotInNewAuction by auction county.
func IsLotInNewCounty(lot *model.LotRecord, c *model.LotCollection) bool {
	return startsRun(lot, c, func(l *model.LotRecord) any {
		return l.Auction.County
	})
}

// startsRun walks c up to lot, skipping lots without an auction, and
// compares key of lot with key of the lot before it. The first keyed lot
// always starts a run. Keys must be comparable.
func startsRun(lot *model.LotRecord, c *model.LotCollection, key func(*model.LotRecord) any) bool {
	if lot == nil || lot.Auction == nil || c == nil {
		return false
	}

	var previous any
	seen := false
	for _, l := range c.ResultPage {
		if l == nil || l.Auction == nil {
			continue
		}
		if l.RowID == lot.RowID {
			return !seen || key(lot) != previous
		}
		previous = key(l)
		seen = true
	}
	return false
}

// IsLastLotInAuction reports whether the lot after lot is missing, has no
// auction, or belongs to a different auction.
func IsLastLotInAuction(lot *model.LotRecord, c *model.LotCollection) bool {
	if lot == nil || c == nil {
		return false
	}
	_, i, ok := lo.FindIndexOf(c.ResultPage, func(l *model.LotRecord) bool {
		return l != nil && l.RowID == lot.RowID
	})
	if !ok {
		return false
	}
	if i+1 == len(c.ResultPage) {
		return true
	}
	next := c.ResultPage[i+1]
	return next == nil || next.Auction == nil || next.Auction.RowID != lot.AuctionID()
}

// IsFirstLotInDate reports whether no earlier lot has an auction starting
// on the same day as lot's. Lots without a start time are skipped.
func IsFirstLotInDate(lot *model.LotRecord, c *model.LotCollection) bool {
	if lot == nil || c == nil {
		return false
	}
	var date string
	if lot.Auction != nil && !lot.Auction.TimeStart.IsZero() {
		date = dayOf(lot.Auction.TimeStart)
	}

	var discovered []string
	for _, l := range c.ResultPage {
		if l == nil || l.Auction == nil || l.Auction.TimeStart.IsZero() {
			continue
		}
		if l.RowID == lot.RowID {
			return !lo.Contains(discovered, date)
		}
		day := dayOf(l.Auction.TimeStart)
		if !lo.Contains(discovered, day) {
			discovered = append(discovered, day)
		}
	}
	return false
}

// dayOf returns the local calendar day of t.
func dayOf(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateOnly)
}
