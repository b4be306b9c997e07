package reconcile

import (
	"log/slog"
	"maps"

	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/registration"
)

// AfterLotsFunc derives display fields over a whole page. It must keep
// the order and length of the page it is given.
type AfterLotsFunc func(lots []*model.LotRecord) []*model.LotRecord

// Result summarizes one reconciliation pass.
type Result struct {
	Matched  int
	Appended int
}

// Reconciler merges incoming pages into existing collections.
type Reconciler struct {
	registry  *registration.Registry
	afterLots AfterLotsFunc
	logger    *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithAfterLots sets the post-processing hook.
func WithAfterLots(fn AfterLotsFunc) Option {
	return func(r *Reconciler) {
		r.afterLots = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a Reconciler backed by registry.
func New(registry *registration.Registry, opts ...Option) *Reconciler {
	r := &Reconciler{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registration registry shared by all passes.
func (r *Reconciler) Registry() *registration.Registry {
	return r.registry
}

// preserved is the client-only state of one lot.
type preserved struct {
	webModule   *model.WebModule
	annotations map[string]any
}

// Reconcile merges incoming into existing in place.
//
// Each incoming record replaces the first existing record with the same
// row_id, keeping its position. When incoming repeats a row_id the last
// occurrence wins the slot; unmatched repeats are all appended.
func (r *Reconciler) Reconcile(existing, incoming *model.LotCollection) Result {
	return r.reconcile(existing, incoming)
}

// ReconcileWindows merges incoming into the visible window and, when full
// is non-nil, independently into the full window. Both passes share the
// registry. Records placed in the full window are copies, so the two
// windows never hold the same record.
func (r *Reconciler) ReconcileWindows(visible, full, incoming *model.LotCollection) (Result, Result) {
	if full == nil {
		return r.reconcile(visible, incoming), Result{}
	}

	// Copy before the visible pass restores its annotations onto incoming.
	fullIncoming := cloneCollection(incoming)
	vis := r.reconcile(visible, incoming)
	return vis, r.reconcile(full, fullIncoming)
}

// UpdateWindows applies records pushed outside a page fetch. Unlike
// ReconcileWindows it never appends: each window only takes the incoming
// records whose row_id it already holds, since a pushed lot may belong to
// another page or fall outside the query's filters.
func (r *Reconciler) UpdateWindows(visible, full, incoming *model.LotCollection) (Result, Result) {
	var vis, fr Result
	if full != nil {
		if known := knownIn(full, incoming, true); known.Len() > 0 {
			fr = r.reconcile(full, known)
		}
	}
	if known := knownIn(visible, incoming, false); known.Len() > 0 {
		vis = r.reconcile(visible, known)
	}
	return vis, fr
}

// knownIn returns the incoming records whose row_id existing holds, cloned
// when the caller shares incoming with another window.
func knownIn(existing, incoming *model.LotCollection, clone bool) *model.LotCollection {
	out := &model.LotCollection{}
	if existing == nil || incoming == nil {
		return out
	}
	for _, lot := range incoming.ResultPage {
		if lot == nil {
			continue
		}
		if held, _ := existing.Find(lot.RowID); held == nil {
			continue
		}
		if clone {
			lot = lot.Clone()
		}
		out.ResultPage = append(out.ResultPage, lot)
	}
	return out
}

// Prepare readies an initial page: it runs the post-processing hook and
// registers the page's auction registrations.
func (r *Reconciler) Prepare(c *model.LotCollection) {
	if c == nil {
		return
	}
	if r.afterLots != nil {
		c.ResultPage = r.afterLots(c.ResultPage)
	}
	r.SyncRegistrations(c)
}

func cloneCollection(c *model.LotCollection) *model.LotCollection {
	if c == nil {
		return nil
	}
	out := &model.LotCollection{
		QueryInfo:  c.QueryInfo,
		ResultPage: make([]*model.LotRecord, len(c.ResultPage)),
	}
	for i, lot := range c.ResultPage {
		out.ResultPage[i] = lot.Clone()
	}
	return out
}

func (r *Reconciler) reconcile(existing, incoming *model.LotCollection) Result {
	saved := snapshot(existing)

	var page []*model.LotRecord
	if incoming != nil {
		page = incoming.ResultPage
	}

	index := make(map[int64]int, len(existing.ResultPage))
	for i := len(existing.ResultPage) - 1; i >= 0; i-- {
		if lot := existing.ResultPage[i]; lot != nil {
			index[lot.RowID] = i
		}
	}

	var res Result
	var appended []*model.LotRecord
	for _, lot := range page {
		if lot == nil {
			continue
		}
		if i, ok := index[lot.RowID]; ok {
			existing.ResultPage[i] = lot
			res.Matched++
			continue
		}
		appended = append(appended, lot)
	}
	if len(appended) > 0 {
		existing.ResultPage = append(existing.ResultPage, appended...)
		res.Appended = len(appended)
	}

	if r.afterLots != nil {
		existing.ResultPage = r.afterLots(existing.ResultPage)
	}

	r.SyncRegistrations(existing)
	restore(existing, saved)

	r.logger.Debug("reconciled lots",
		"matched", res.Matched,
		"appended", res.Appended,
		"total", len(existing.ResultPage),
	)

	return res
}

// SyncRegistrations points every lot's auction at the registry's shared
// registration, seeding the registry from lots whose auction is not yet
// known.
func (r *Reconciler) SyncRegistrations(c *model.LotCollection) {
	if c == nil {
		return
	}

	for _, lot := range c.ResultPage {
		if lot == nil || lot.Auction == nil {
			continue
		}
		if reg, ok := r.registry.Lookup(lot.Auction.RowID); ok {
			lot.Auction.Registration = reg
			continue
		}
		r.registry.Seed(lot.Auction.RowID, lot.Auction.Registration)
	}

	// Lots seen before a later lot seeded their auction still hold nil.
	for _, lot := range c.ResultPage {
		if lot == nil || lot.Auction == nil || lot.Auction.Registration != nil {
			continue
		}
		if reg, ok := r.registry.Lookup(lot.Auction.RowID); ok {
			lot.Auction.Registration = reg
		}
	}
}

// snapshot captures the client-only state of every lot in c by row_id.
func snapshot(c *model.LotCollection) map[int64]preserved {
	saved := make(map[int64]preserved, len(c.ResultPage))
	for i := len(c.ResultPage) - 1; i >= 0; i-- {
		lot := c.ResultPage[i]
		if lot == nil {
			continue
		}
		p := preserved{webModule: lot.WebModule}
		for key, value := range lot.Annotations {
			if model.IsAnnotationKey(key) {
				if p.annotations == nil {
					p.annotations = make(map[string]any)
				}
				p.annotations[key] = value
			}
		}
		saved[lot.RowID] = p
	}
	return saved
}

// restore reapplies saved client-only state onto the lots still present.
// web_module is always written back, including an absent one.
func restore(c *model.LotCollection, saved map[int64]preserved) {
	for _, lot := range c.ResultPage {
		if lot == nil {
			continue
		}
		p, ok := saved[lot.RowID]
		if !ok {
			continue
		}
		lot.WebModule = p.webModule
		if len(p.annotations) == 0 {
			continue
		}
		if lot.Annotations == nil {
			lot.Annotations = make(map[string]any, len(p.annotations))
		}
		maps.Copy(lot.Annotations, p.annotations)
	}
}
