package model

import (
	"encoding/json"
	"testing"
)

func TestLotRecord_UnmarshalJSON(t *testing.T) {
	data := []byte(`{
		"row_id": 42,
		"lot_number": "17",
		"title": "Oak Desk",
		"status": "open",
		"current_price": 125.5,
		"auction": {"row_id": 99, "auction_registration": {"auction_id": 99, "deposit": 100}},
		"web_module": {"bulkBid": true, "absentee_bid": {"amount": 150}},
		"_note": "keep me",
		"_placeholder": false,
		"estimate_low": 100
	}`)

	var lot LotRecord
	if err := json.Unmarshal(data, &lot); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if lot.RowID != 42 {
		t.Errorf("RowID = %d, want 42", lot.RowID)
	}
	if lot.Title != "Oak Desk" {
		t.Errorf("Title = %q, want %q", lot.Title, "Oak Desk")
	}
	if lot.AuctionID() != 99 {
		t.Errorf("AuctionID() = %d, want 99", lot.AuctionID())
	}
	if lot.Auction.Registration == nil || lot.Auction.Registration.Deposit != 100 {
		t.Errorf("Registration = %+v, want deposit 100", lot.Auction.Registration)
	}
	if lot.WebModule == nil || !lot.WebModule.BulkBid {
		t.Errorf("WebModule = %+v, want bulkBid", lot.WebModule)
	}
	if got, _ := lot.Annotation("_note"); got != "keep me" {
		t.Errorf("_note = %v, want %q", got, "keep me")
	}
	if lot.IsPlaceholder() {
		t.Error("IsPlaceholder() = true, want false")
	}
	if _, ok := lot.Fields["estimate_low"]; !ok {
		t.Error("estimate_low should be kept in Fields")
	}
	if _, ok := lot.Fields["_note"]; ok {
		t.Error("_note should not be in Fields")
	}
	if _, ok := lot.Fields["title"]; ok {
		t.Error("title should not be in Fields")
	}
}

func TestLotRecord_MarshalRoundTrip(t *testing.T) {
	lot := LotRecord{
		RowID:  7,
		Title:  "Lamp",
		Fields: map[string]json.RawMessage{"estimate_low": json.RawMessage(`20`)},
	}
	lot.SetAnnotation("_bidMode", "edit")

	data, err := json.Marshal(lot)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("Unmarshal flat failed: %v", err)
	}
	if flat["_bidMode"] != "edit" {
		t.Errorf("_bidMode = %v, want edit", flat["_bidMode"])
	}
	if flat["estimate_low"] != float64(20) {
		t.Errorf("estimate_low = %v, want 20", flat["estimate_low"])
	}

	var back LotRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got, _ := back.Annotation("_bidMode"); got != "edit" {
		t.Errorf("_bidMode after round trip = %v, want edit", got)
	}
}

func TestSetAnnotation_AddsPrefix(t *testing.T) {
	var lot LotRecord
	lot.SetAnnotation("placeholder", true)

	if !lot.IsPlaceholder() {
		t.Error("IsPlaceholder() = false, want true")
	}
}

func TestLotRecord_Clone(t *testing.T) {
	reg := &AuctionRegistration{AuctionID: 1, Deposit: 50}
	lot := &LotRecord{
		RowID:     1,
		Auction:   &AuctionRef{RowID: 1, Registration: reg},
		WebModule: &WebModule{BulkBid: true},
		Bids:      []Bid{{Type: BidTypeAbsentee}},
	}
	lot.SetAnnotation("_note", "a")

	c := lot.Clone()
	c.WebModule.BulkBid = false
	c.Bids[0].Type = BidTypeLive
	c.SetAnnotation("_note", "b")
	c.Auction.Title = "changed"

	if !lot.WebModule.BulkBid {
		t.Error("clone shares WebModule")
	}
	if lot.Bids[0].Type != BidTypeAbsentee {
		t.Error("clone shares Bids")
	}
	if got, _ := lot.Annotation("_note"); got != "a" {
		t.Error("clone shares Annotations")
	}
	if lot.Auction.Title != "" {
		t.Error("clone shares AuctionRef")
	}
	if c.Auction.Registration != reg {
		t.Error("clone should share the registration")
	}
}

func TestLotRecord_Extend(t *testing.T) {
	lot := &LotRecord{
		RowID:     1,
		Title:     "old",
		WebModule: &WebModule{AbsenteeBidEditMode: true},
		Fields:    map[string]json.RawMessage{"a": json.RawMessage(`1`)},
	}
	lot.SetAnnotation("_note", "keep")

	lot.Extend(&LotRecord{
		RowID:  1,
		Title:  "new",
		Fields: map[string]json.RawMessage{"b": json.RawMessage(`2`)},
	})

	if lot.Title != "new" {
		t.Errorf("Title = %q, want new", lot.Title)
	}
	if lot.WebModule == nil || !lot.WebModule.AbsenteeBidEditMode {
		t.Error("WebModule should be kept")
	}
	if got, _ := lot.Annotation("_note"); got != "keep" {
		t.Errorf("_note = %v, want keep", got)
	}
	if len(lot.Fields) != 2 {
		t.Errorf("len(Fields) = %d, want 2", len(lot.Fields))
	}
}

func TestAuctionRegistration_MergeFrom(t *testing.T) {
	reg := &AuctionRegistration{
		AuctionID: 5,
		Deposit:   100,
		EitherOr: &EitherOr{Groups: map[string]*EitherOrGroup{
			"A": {Label: "Group A", MaxQuantity: 1},
		}},
	}
	groupA := reg.EitherOr.Groups["A"]

	reg.MergeFrom(&AuctionRegistration{
		Deposit:              100,
		TotalAppliedDeposits: 40,
		EitherOr: &EitherOr{Groups: map[string]*EitherOrGroup{
			"A": {Label: "Group A", MaxQuantity: 2},
			"B": {Label: "Group B", MaxQuantity: 3},
		}},
	})

	if reg.AuctionID != 5 {
		t.Errorf("AuctionID = %d, want 5", reg.AuctionID)
	}
	if reg.TotalAppliedDeposits != 40 {
		t.Errorf("TotalAppliedDeposits = %v, want 40", reg.TotalAppliedDeposits)
	}
	if groupA.MaxQuantity != 2 {
		t.Errorf("group A MaxQuantity = %d, want 2 (merged in place)", groupA.MaxQuantity)
	}
	if g, ok := reg.Group("B"); !ok || g.MaxQuantity != 3 {
		t.Errorf("group B = %+v, want MaxQuantity 3", g)
	}
}

func TestLotCollection_Find(t *testing.T) {
	c := &LotCollection{ResultPage: []*LotRecord{{RowID: 1}, nil, {RowID: 3}}}

	lot, idx := c.Find(3)
	if lot == nil || idx != 2 {
		t.Errorf("Find(3) = %v, %d, want lot at 2", lot, idx)
	}
	if _, idx := c.Find(9); idx != -1 {
		t.Errorf("Find(9) index = %d, want -1", idx)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestLotRecord_IsClosed(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"open", false},
		{"", false},
		{"closed", true},
		{"Sold", true},
		{"passed", true},
	}
	for _, tt := range tests {
		l := &LotRecord{Status: tt.status}
		if got := l.IsClosed(); got != tt.want {
			t.Errorf("IsClosed() for %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}
