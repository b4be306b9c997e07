package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/registration"
)

func lot(rowID int64, title string) *model.LotRecord {
	return &model.LotRecord{RowID: rowID, Title: title}
}

func page(lots ...*model.LotRecord) *model.LotCollection {
	return &model.LotCollection{ResultPage: lots}
}

func rowIDs(c *model.LotCollection) []int64 {
	ids := make([]int64, 0, len(c.ResultPage))
	for _, l := range c.ResultPage {
		ids = append(ids, l.RowID)
	}
	return ids
}

func newReconciler(opts ...Option) *Reconciler {
	return New(registration.New(), opts...)
}

func TestReconcile_Scenario(t *testing.T) {
	b := lot(2, "B")
	b.SetAnnotation("_note", "keep me")
	existing := page(lot(1, "A"), b)
	incoming := page(lot(2, "B2"), lot(3, "C"))

	res := newReconciler().Reconcile(existing, incoming)

	assert.Equal(t, Result{Matched: 1, Appended: 1}, res)
	require.Equal(t, []int64{1, 2, 3}, rowIDs(existing))
	assert.Equal(t, "A", existing.ResultPage[0].Title)
	assert.Equal(t, "B2", existing.ResultPage[1].Title)
	note, ok := existing.ResultPage[1].Annotation("_note")
	require.True(t, ok)
	assert.Equal(t, "keep me", note)
	assert.Equal(t, "C", existing.ResultPage[2].Title)
	_, ok = existing.ResultPage[2].Annotation("_note")
	assert.False(t, ok)
}

func TestReconcile_MergeByIdentityKeepsPosition(t *testing.T) {
	existing := page(lot(5, "e"), lot(4, "d"), lot(3, "c"), lot(2, "b"))
	incoming := page(lot(3, "c2"), lot(5, "e2"))

	newReconciler().Reconcile(existing, incoming)

	assert.Equal(t, []int64{5, 4, 3, 2}, rowIDs(existing))
	assert.Same(t, incoming.ResultPage[1], existing.ResultPage[0])
	assert.Same(t, incoming.ResultPage[0], existing.ResultPage[2])
	assert.Equal(t, "d", existing.ResultPage[1].Title)
}

func TestReconcile_FullReplacementNotFieldMerge(t *testing.T) {
	old := lot(1, "A")
	old.HighBidder = "paddle 12"
	existing := page(old)

	newReconciler().Reconcile(existing, page(lot(1, "A")))

	assert.Empty(t, existing.ResultPage[0].HighBidder)
}

func TestReconcile_AppendOrder(t *testing.T) {
	existing := page(lot(1, "A"))
	incoming := page(lot(9, "9"), lot(1, "A"), lot(7, "7"), lot(8, "8"))

	res := newReconciler().Reconcile(existing, incoming)

	assert.Equal(t, 3, res.Appended)
	assert.Equal(t, []int64{1, 9, 7, 8}, rowIDs(existing))
}

func TestReconcile_AnnotationSurvival(t *testing.T) {
	old := lot(1, "A")
	old.SetAnnotation("_bidMode", "edit")
	old.WebModule = &model.WebModule{AbsenteeBidEditMode: true}
	existing := page(old)

	fresh := lot(1, "A")
	fresh.SetAnnotation("_bidMode", "view")
	fresh.SetAnnotation("_server", true)
	newReconciler().Reconcile(existing, page(fresh))

	got := existing.ResultPage[0]
	mode, _ := got.Annotation("_bidMode")
	assert.Equal(t, "edit", mode)
	server, _ := got.Annotation("_server")
	assert.Equal(t, true, server, "unpreserved incoming annotations stay")
	require.NotNil(t, got.WebModule)
	assert.True(t, got.WebModule.AbsenteeBidEditMode)
}

func TestReconcile_WebModuleAlwaysRestored(t *testing.T) {
	existing := page(lot(1, "A"))
	fresh := lot(1, "A")
	fresh.WebModule = &model.WebModule{BulkBid: true}

	newReconciler().Reconcile(existing, page(fresh))

	assert.Nil(t, existing.ResultPage[0].WebModule)
}

func TestReconcile_Idempotent(t *testing.T) {
	a := lot(1, "A")
	a.SetAnnotation("_note", "x")
	existing := page(a, lot(2, "B"))

	r := newReconciler()
	r.Reconcile(existing, existing)
	r.Reconcile(existing, existing)

	require.Equal(t, []int64{1, 2}, rowIDs(existing))
	note, _ := existing.ResultPage[0].Annotation("_note")
	assert.Equal(t, "x", note)
}

func TestReconcile_EmptyIncoming(t *testing.T) {
	reg := &model.AuctionRegistration{Deposit: 100}
	a := lot(1, "A")
	a.Auction = &model.AuctionRef{RowID: 99, Registration: reg}
	existing := page(a)

	r := newReconciler()
	res := r.Reconcile(existing, page())

	assert.Equal(t, Result{}, res)
	assert.Equal(t, []int64{1}, rowIDs(existing))
	got, ok := r.Registry().Lookup(99)
	require.True(t, ok)
	assert.Same(t, reg, got)
}

func TestReconcile_DuplicateIncomingLastWins(t *testing.T) {
	existing := page(lot(1, "A"))
	incoming := page(lot(1, "first"), lot(1, "second"), lot(2, "x"), lot(2, "y"))

	res := newReconciler().Reconcile(existing, incoming)

	assert.Equal(t, "second", existing.ResultPage[0].Title)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, []int64{1, 2, 2}, rowIDs(existing))
}

func TestReconcile_AfterLotsHook(t *testing.T) {
	var seen int
	hook := func(lots []*model.LotRecord) []*model.LotRecord {
		seen = len(lots)
		for _, l := range lots {
			l.SetAnnotation("_display", l.Title+"!")
		}
		return lots
	}
	b := lot(2, "B")
	b.SetAnnotation("_display", "stale")
	existing := page(lot(1, "A"), b)

	newReconciler(WithAfterLots(hook)).Reconcile(existing, page(lot(2, "B2"), lot(3, "C")))

	assert.Equal(t, 3, seen)
	d, _ := existing.ResultPage[0].Annotation("_display")
	assert.Equal(t, "A!", d)
	d, _ = existing.ResultPage[1].Annotation("_display")
	assert.Equal(t, "stale", d, "restore runs after the hook")
}

func TestSyncRegistrations_SharesByReference(t *testing.T) {
	reg := &model.AuctionRegistration{Deposit: 100}
	a := lot(1, "A")
	a.Auction = &model.AuctionRef{RowID: 99, Registration: reg}
	b := lot(2, "B")
	b.Auction = &model.AuctionRef{RowID: 99}
	c := page(a, b)

	newReconciler().SyncRegistrations(c)

	assert.Same(t, reg, b.Auction.Registration)
	assert.Equal(t, 100.0, b.Auction.Registration.Deposit)

	a.Auction.Registration.TotalAppliedDeposits = 30
	assert.Equal(t, 30.0, b.Auction.Registration.TotalAppliedDeposits)
}

func TestSyncRegistrations_LaterSeedBackfills(t *testing.T) {
	reg := &model.AuctionRegistration{Deposit: 100}
	a := lot(1, "A")
	a.Auction = &model.AuctionRef{RowID: 99}
	b := lot(2, "B")
	b.Auction = &model.AuctionRef{RowID: 99, Registration: reg}

	newReconciler().SyncRegistrations(page(a, b))

	assert.Same(t, reg, a.Auction.Registration)
}

func TestSyncRegistrations_RegistryWinsOverFreshCopy(t *testing.T) {
	r := newReconciler()
	shared := &model.AuctionRegistration{Deposit: 100}
	r.Registry().Seed(99, shared)

	fresh := lot(1, "A")
	fresh.Auction = &model.AuctionRef{RowID: 99, Registration: &model.AuctionRegistration{Deposit: 100}}
	existing := page()
	r.Reconcile(existing, page(fresh))

	assert.Same(t, shared, existing.ResultPage[0].Auction.Registration)
}

func TestSyncRegistrations_SkipsLotsWithoutAuction(t *testing.T) {
	r := newReconciler()
	r.SyncRegistrations(page(lot(1, "A"), nil))

	assert.Equal(t, 0, r.Registry().Len())
}

func TestReconcileWindows_SharedRegistryAcrossWindows(t *testing.T) {
	r := newReconciler()
	reg := &model.AuctionRegistration{Deposit: 100}

	visLot := lot(1, "A")
	visLot.Auction = &model.AuctionRef{RowID: 99, Registration: reg}
	visible := page(visLot)
	fullLot := lot(2, "B")
	fullLot.Auction = &model.AuctionRef{RowID: 99}
	full := page(lot(1, "A"), fullLot)
	r.SyncRegistrations(visible)
	r.SyncRegistrations(full)

	fresh := lot(2, "B2")
	fresh.Auction = &model.AuctionRef{RowID: 99, Registration: &model.AuctionRegistration{}}
	r.ReconcileWindows(visible, full, page(fresh))

	assert.Same(t, reg, visible.ResultPage[0].Auction.Registration)
	assert.Same(t, reg, visible.ResultPage[1].Auction.Registration)
	assert.Same(t, reg, full.ResultPage[1].Auction.Registration)
}

func TestReconcileWindows_IndependentSnapshots(t *testing.T) {
	v := lot(1, "A")
	v.SetAnnotation("_note", "visible")
	visible := page(v)
	f := lot(1, "A")
	f.SetAnnotation("_note", "full")
	full := page(f, lot(2, "B"))

	vis, fl := newReconciler().ReconcileWindows(visible, full, page(lot(1, "A2"), lot(2, "B2")))

	assert.Equal(t, Result{Matched: 1, Appended: 1}, vis)
	assert.Equal(t, Result{Matched: 2}, fl)
	assert.NotSame(t, visible.ResultPage[0], full.ResultPage[0])

	note, _ := visible.ResultPage[0].Annotation("_note")
	assert.Equal(t, "visible", note)
	note, _ = full.ResultPage[0].Annotation("_note")
	assert.Equal(t, "full", note)
	_, ok := full.ResultPage[1].Annotation("_note")
	assert.False(t, ok)
	assert.Equal(t, "A2", full.ResultPage[0].Title)
}

func TestReconcileWindows_NoFullWindow(t *testing.T) {
	visible := page(lot(1, "A"))

	vis, fl := newReconciler().ReconcileWindows(visible, nil, page(lot(2, "B")))

	assert.Equal(t, 1, vis.Appended)
	assert.Equal(t, Result{}, fl)
}

func TestUpdateWindows_OnlyKnownRows(t *testing.T) {
	v := lot(2, "B")
	v.SetAnnotation("_note", "visible")
	visible := page(lot(1, "A"), v)
	full := page(lot(1, "A"), lot(2, "B"), lot(3, "C"))

	vis, fl := newReconciler().UpdateWindows(visible, full, page(lot(2, "B2"), lot(3, "C2"), lot(999, "elsewhere")))

	assert.Equal(t, Result{Matched: 1}, vis)
	assert.Equal(t, Result{Matched: 2}, fl)
	assert.Equal(t, []int64{1, 2}, rowIDs(visible))
	assert.Equal(t, []int64{1, 2, 3}, rowIDs(full))
	assert.Equal(t, "B2", visible.ResultPage[1].Title)
	assert.Equal(t, "C2", full.ResultPage[2].Title)
	assert.NotSame(t, visible.ResultPage[1], full.ResultPage[1])

	note, _ := visible.ResultPage[1].Annotation("_note")
	assert.Equal(t, "visible", note)
}

func TestUpdateWindows_UnknownRowIsNoop(t *testing.T) {
	calls := 0
	hook := func(lots []*model.LotRecord) []*model.LotRecord {
		calls++
		return lots
	}
	visible := page(lot(1, "A"), lot(2, "B"))

	vis, fl := newReconciler(WithAfterLots(hook)).UpdateWindows(visible, nil, page(lot(999, "other page")))

	assert.Equal(t, Result{}, vis)
	assert.Equal(t, Result{}, fl)
	assert.Equal(t, []int64{1, 2}, rowIDs(visible))
	assert.Zero(t, calls)
}

func TestPrepare_RunsHookAndSeedsRegistry(t *testing.T) {
	reg := &model.AuctionRegistration{Deposit: 50}
	a := lot(1, "A")
	a.Auction = &model.AuctionRef{RowID: 7, Registration: reg}
	b := lot(2, "B")
	b.Auction = &model.AuctionRef{RowID: 7}
	c := page(a, b)

	hook := func(lots []*model.LotRecord) []*model.LotRecord {
		for _, l := range lots {
			l.SetAnnotation("_seen", true)
		}
		return lots
	}
	r := newReconciler(WithAfterLots(hook))
	r.Prepare(c)

	seen, _ := b.Annotation("_seen")
	assert.Equal(t, true, seen)
	assert.Same(t, reg, b.Auction.Registration)
	assert.Equal(t, 1, r.Registry().Len())
}
