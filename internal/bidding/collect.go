package bidding

import (
	"github.com/rickgao/lot-watch/internal/api"
	"github.com/rickgao/lot-watch/internal/model"
)

// Bid is a marked lot and the submission built for it.
type Bid struct {
	RowID      int64
	LotNumber  string
	Submission api.BidSubmission
}

// Collect returns a bid for every lot marked for bulk bidding with a
// non-zero amount, in page order.
func Collect(c *model.LotCollection) []Bid {
	if c == nil {
		return nil
	}
	var bids []Bid
	for _, lot := range c.ResultPage {
		if lot == nil || lot.WebModule == nil || !lot.WebModule.BulkBid {
			continue
		}
		if lot.WebModule.AbsenteeBid.Amount == 0 {
			continue
		}
		bids = append(bids, Bid{
			RowID:      lot.RowID,
			LotNumber:  lot.LotNumber,
			Submission: NewSubmission(lot),
		})
	}
	return bids
}

// NewSubmission builds the confirmed submission for lot's form amount.
// Auctions with percentage bidding get max_bid_percentage, others max_bid.
func NewSubmission(lot *model.LotRecord) api.BidSubmission {
	sub := api.BidSubmission{
		LotID:     lot.RowID,
		Confirmed: true,
	}
	if lot.AbsenteeBid != nil && lot.AbsenteeBid.LotID != 0 {
		sub.LotID = lot.AbsenteeBid.LotID
	}

	var amount float64
	if lot.WebModule != nil {
		amount = lot.WebModule.AbsenteeBid.Amount
	}
	if lot.Auction != nil && lot.Auction.PercentageBidding {
		sub.MaxBidPercentage = &amount
	} else {
		sub.MaxBid = &amount
	}
	return sub
}
