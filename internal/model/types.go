package model

import (
	"encoding/json"
	"strings"
	"time"
)

// AnnotationPrefix marks client-only keys on a lot record.
const AnnotationPrefix = "_"

// Lot statuses that no longer change.
var closedStatuses = map[string]struct{}{
	"closed":    {},
	"sold":      {},
	"passed":    {},
	"unsold":    {},
	"withdrawn": {},
}

// Bid types reported by the server.
const (
	BidTypeAbsentee = "absentee"
	BidTypeLive     = "live"
)

// -----------------------------------------------------------------------------
// Lot Types
// -----------------------------------------------------------------------------

// LotRecord is a single lot as returned by the lots endpoints.
type LotRecord struct {
	RowID              int64        `json:"row_id"`
	LotNumber          string       `json:"lot_number"`
	LotNumberExtension string       `json:"lot_number_extension"`
	Title              string       `json:"title,omitempty"`
	Status             string       `json:"status,omitempty"`
	CurrentPrice       float64      `json:"current_price,omitempty"`
	HighBidder         string       `json:"high_bidder,omitempty"`
	TimeRemaining      int64        `json:"time_remaining,omitempty"` // Seconds until close
	Auction            *AuctionRef  `json:"auction,omitempty"`
	AbsenteeBid        *AbsenteeBid `json:"absentee_bid,omitempty"`
	Bids               []Bid        `json:"bids,omitempty"`

	// WebModule is the ui namespace. Preserved across refreshes.
	WebModule *WebModule `json:"web_module,omitempty"`

	// Annotations holds every "_"-prefixed key. Preserved across refreshes.
	Annotations map[string]any `json:"-"`

	// Fields holds server keys not named above, passed through untouched.
	Fields map[string]json.RawMessage `json:"-"`
}

// IsPlaceholder reports whether the record is a lightweight stand-in
// for a lot that has not been loaded into the visible window yet.
func (l *LotRecord) IsPlaceholder() bool {
	v, ok := l.Annotations["_placeholder"].(bool)
	return ok && v
}

// IsClosed reports whether bidding on the lot has ended.
func (l *LotRecord) IsClosed() bool {
	_, ok := closedStatuses[strings.ToLower(l.Status)]
	return ok
}

// Annotation returns the client-only value stored under key.
func (l *LotRecord) Annotation(key string) (any, bool) {
	v, ok := l.Annotations[key]
	return v, ok
}

// SetAnnotation stores a client-only value. Keys must carry AnnotationPrefix.
func (l *LotRecord) SetAnnotation(key string, value any) {
	if !IsAnnotationKey(key) {
		key = AnnotationPrefix + key
	}
	if l.Annotations == nil {
		l.Annotations = make(map[string]any)
	}
	l.Annotations[key] = value
}

// ClearAnnotation removes a client-only value.
func (l *LotRecord) ClearAnnotation(key string) {
	delete(l.Annotations, key)
}

// AuctionID returns the row_id of the lot's auction, or 0 if it has none.
func (l *LotRecord) AuctionID() int64 {
	if l.Auction == nil {
		return 0
	}
	return l.Auction.RowID
}

// IsAnnotationKey reports whether key names a client-only field.
func IsAnnotationKey(key string) bool {
	return strings.HasPrefix(key, AnnotationPrefix)
}

// AuctionRef is the auction a lot belongs to, embedded in every lot.
type AuctionRef struct {
	RowID        int64                `json:"row_id"`
	Title        string               `json:"title,omitempty"`
	TimeStart    time.Time            `json:"time_start,omitempty"`
	County       string               `json:"county,omitempty"`
	Registration *AuctionRegistration `json:"auction_registration"`

	// PercentageBidding switches bulk bids to max_bid_percentage.
	PercentageBidding bool `json:"percentage_bidding,omitempty"`
}

// AbsenteeBid is the bidder's standing absentee bid on a lot.
type AbsenteeBid struct {
	LotID            int64   `json:"lot_id,omitempty"`
	MaxBid           float64 `json:"max_bid,omitempty"`
	MaxBidPercentage float64 `json:"max_bid_percentage,omitempty"`
	Confirmed        bool    `json:"confirmed"`
}

// Bid is one of the bidder's bids on a lot.
type Bid struct {
	Type             string  `json:"type"` // "absentee" or "live"
	GroupID          *string `json:"group_id"`
	Confirmed        bool    `json:"confirmed"`
	MaxBid           float64 `json:"max_bid,omitempty"`
	MaxBidPercentage float64 `json:"max_bid_percentage,omitempty"`
	LotID            int64   `json:"lot_id,omitempty"`
}

// CurrentBid returns the bidder's current bid on the lot, or nil.
// The most recent bid is last in the list.
func (l *LotRecord) CurrentBid() *Bid {
	if len(l.Bids) == 0 {
		return nil
	}
	return &l.Bids[len(l.Bids)-1]
}

// WebModule is the client-side editing state of a lot.
type WebModule struct {
	BulkBid                     bool             `json:"bulkBid"`
	AbsenteeBid                 WebModuleBidForm `json:"absentee_bid"`
	AbsenteeBidEditMode         bool             `json:"absenteeBidEditMode"`
	PreviousAbsenteeBidEditMode bool             `json:"previousAbsenteeBidEditMode"`
	UpdateInProgress            bool             `json:"updateInProgress"`
}

// WebModuleBidForm is the absentee bid form bound to a lot.
type WebModuleBidForm struct {
	Amount                      float64 `json:"amount"`
	RoundedAmountMessageOpen    bool    `json:"rounded_amount_message_open"`
	RoundedAmountMessageTitle   string  `json:"rounded_amount_message_title"`
	RoundedAmountMessageContent string  `json:"rounded_amount_message_content"`
}

// -----------------------------------------------------------------------------
// Collections
// -----------------------------------------------------------------------------

// QueryInfo is the pagination metadata of a result page.
type QueryInfo struct {
	TotalNumResults int `json:"total_num_results"`
	Page            int `json:"page"`
	Pages           int `json:"pages"`
	PageSize        int `json:"page_size"`
}

// LotCollection is an ordered page of lots plus its query metadata.
type LotCollection struct {
	ResultPage []*LotRecord `json:"result_page"`
	QueryInfo  QueryInfo    `json:"query_info"`
}

// Len returns the number of records on the page.
func (c *LotCollection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ResultPage)
}

// Find returns the first record with the given row_id.
func (c *LotCollection) Find(rowID int64) (*LotRecord, int) {
	for i, lot := range c.ResultPage {
		if lot != nil && lot.RowID == rowID {
			return lot, i
		}
	}
	return nil, -1
}
