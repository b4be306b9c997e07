package api

import (
	"encoding/json"

	"github.com/rickgao/lot-watch/internal/model"
)

// Fieldsets accepted by the single lot endpoint.
const (
	FieldsetDetail = "detail"
	FieldsetList   = "list"
)

// LotResponse from GET {lot_path}/{id}/{fieldset}
type LotResponse struct {
	Response *model.LotRecord `json:"response"`
}

// BidSubmission is one absentee bid in a bulk submission. Exactly one of
// MaxBid and MaxBidPercentage is set.
type BidSubmission struct {
	LotID            int64    `json:"lot_id"`
	MaxBid           *float64 `json:"max_bid,omitempty"`
	MaxBidPercentage *float64 `json:"max_bid_percentage,omitempty"`
	Confirmed        bool     `json:"confirmed"`
}

// Amount returns whichever amount the submission carries.
func (b BidSubmission) Amount() float64 {
	if b.MaxBidPercentage != nil {
		return *b.MaxBidPercentage
	}
	if b.MaxBid != nil {
		return *b.MaxBid
	}
	return 0
}

// BidResponse from POST {quick_bid_path}. Results are in submission order.
type BidResponse struct {
	ResultPage []BidResult     `json:"result_page"`
	Me         json.RawMessage `json:"me,omitempty"`
}

// HasBidder reports whether the response carries the bidder profile.
func (r *BidResponse) HasBidder() bool {
	return len(r.Me) > 0 && string(r.Me) != "null"
}

// BidResult is the server's view of one submitted bid.
type BidResult struct {
	AuctionLotID      int64              `json:"auction_lot_id"`
	OutbidAbsenteeBid bool               `json:"_outbid_absentee_bid"`
	AbsenteeBid       *model.AbsenteeBid `json:"absentee_bid"`
	Auction           *model.AuctionRef  `json:"auction,omitempty"`
}

// AcceptedAmount returns the amount the server stored, which may have been
// rounded down to a bid increment.
func (r BidResult) AcceptedAmount() float64 {
	if r.AbsenteeBid == nil {
		return 0
	}
	if r.AbsenteeBid.MaxBid != 0 {
		return r.AbsenteeBid.MaxBid
	}
	return r.AbsenteeBid.MaxBidPercentage
}
