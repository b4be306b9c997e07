package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/chanx"

	"github.com/rickgao/lot-watch/internal/api"
	"github.com/rickgao/lot-watch/internal/connection"
	"github.com/rickgao/lot-watch/internal/lotview"
	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/reconcile"
	"github.com/rickgao/lot-watch/internal/storage"
)

// Errors returned by the refresher.
var (
	ErrStaleResponse  = errors.New("stale response")
	ErrAlreadyStarted = errors.New("refresher already started")
	ErrNotRunning     = errors.New("refresher not running")
)

// Kind identifies what triggered a refresh.
type Kind int

const (
	KindPrimary    Kind = iota // polling timer
	KindSecondary              // on demand, at most once per period
	KindAuctionEnd             // an auction closed
	KindPush                   // push message
	KindQuery                  // query changed
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindSecondary:
		return "secondary"
	case KindAuctionEnd:
		return "auction_end"
	case KindPush:
		return "push"
	case KindQuery:
		return "query"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fetcher fetches a page of lots.
type Fetcher interface {
	FetchLots(ctx context.Context, params api.QueryParams) (*model.LotCollection, error)
}

// PushStatus reports whether the push transport is delivering updates.
type PushStatus interface {
	Available() bool
}

// Observer receives every applied page. Observe must not block and must
// not keep lots after it returns.
type Observer interface {
	Observe(seq int64, observedAt time.Time, lots []*model.LotRecord)
}

// RefreshablePolicy reports whether the page can still change.
type RefreshablePolicy func(auction *model.AuctionRef, lots *model.LotCollection) bool

// CountdownFunc returns how long until a lot's countdown reaches zero, or
// zero when it has none.
type CountdownFunc func(lot *model.LotRecord) time.Duration

// TimeRemaining is the default CountdownFunc: the lot's time_remaining in
// seconds, as of the page it came in.
func TimeRemaining(lot *model.LotRecord) time.Duration {
	return time.Duration(lot.TimeRemaining) * time.Second
}

// Config holds refresher configuration.
type Config struct {
	Interval       time.Duration   // Poll interval (default: 30s)
	FetchTimeout   time.Duration   // Per-fetch timeout (default: 10s)
	LazyLoadOffset int             // Visible window size; 0 disables the full window
	Query          api.QueryParams // Lots query
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		FetchTimeout: 10 * time.Second,
	}
}

// Stats is a point-in-time view of refresher counters.
type Stats struct {
	AppliedSeq  int64
	Refreshes   int64
	Stale       int64
	Errors      int64
	LastRefresh time.Time
	TimerArmed  bool
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithPush makes polling depend on push availability.
func WithPush(push PushStatus) Option {
	return func(r *Refresher) { r.push = push }
}

// WithRefreshable replaces the default policy, which refreshes while
// some lot is not closed.
func WithRefreshable(policy RefreshablePolicy) Option {
	return func(r *Refresher) {
		if policy != nil {
			r.refreshable = policy
		}
	}
}

// WithErrorHandler receives fetch errors. The default logs them.
func WithErrorHandler(fn func(error)) Option {
	return func(r *Refresher) {
		if fn != nil {
			r.onError = fn
		}
	}
}

// WithOnUpdate is called on the loop after every applied page.
func WithOnUpdate(fn func(visible, full *model.LotCollection)) Option {
	return func(r *Refresher) { r.onUpdate = fn }
}

// WithObserver offers every applied page to o.
func WithObserver(o Observer) Option {
	return func(r *Refresher) { r.observer = o }
}

// WithHeartbeatStore is cleared on Init so the first push heartbeat is
// not compared against a previous session.
func WithHeartbeatStore(store storage.HeartbeatStore) Option {
	return func(r *Refresher) { r.heartbeats = store }
}

// WithCountdown replaces TimeRemaining as the source of lot countdowns.
func WithCountdown(fn CountdownFunc) Option {
	return func(r *Refresher) {
		if fn != nil {
			r.countdown = fn
		}
	}
}

// Refresher keeps the lot windows current.
type Refresher struct {
	cfg         Config
	fetcher     Fetcher
	rec         *reconcile.Reconciler
	logger      *slog.Logger
	push        PushStatus
	refreshable RefreshablePolicy
	onError     func(error)
	onUpdate    func(visible, full *model.LotCollection)
	observer    Observer
	heartbeats  storage.HeartbeatStore
	countdown   CountdownFunc

	// Owned by the loop.
	visible    *model.LotCollection
	full       *model.LotCollection
	auction    *model.AuctionRef
	query      api.QueryParams
	timer      *time.Timer
	lotTimer   *time.Timer // earliest lot countdown
	gate       bool
	nextSeq    int64
	appliedSeq int64

	// querySeq is the first sequence fetched with the current query.
	// Earlier responses belong to the old query and are discarded; the
	// first response at or after it replaces the windows while
	// queryPending is set.
	querySeq     int64
	queryPending bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	queue   *chanx.UnboundedChan[func()]
	running atomic.Bool

	applied     atomic.Int64
	refreshes   atomic.Int64
	stale       atomic.Int64
	errs        atomic.Int64
	lastRefresh atomic.Int64
	timerArmed  atomic.Bool
}

// New creates a new Refresher.
func New(cfg Config, fetcher Fetcher, rec *reconcile.Reconciler, logger *slog.Logger, opts ...Option) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaults.FetchTimeout
	}

	r := &Refresher{
		cfg:         cfg,
		fetcher:     fetcher,
		rec:         rec,
		logger:      logger,
		refreshable: HasOpenLots,
		countdown:   TimeRemaining,
		query:       cfg.Query,
		gate:        true,
	}
	r.onError = func(err error) {
		r.logger.Warn("lots refresh failed", "error", err)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasOpenLots reports whether some lot is not closed.
func HasOpenLots(_ *model.AuctionRef, lots *model.LotCollection) bool {
	if lots == nil {
		return false
	}
	for _, lot := range lots.ResultPage {
		if lot != nil && !lot.IsPlaceholder() && !lot.IsClosed() {
			return true
		}
	}
	return false
}

// Start begins the event loop.
func (r *Refresher) Start(ctx context.Context) error {
	if r.running.Load() {
		return ErrAlreadyStarted
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.queue = chanx.NewUnboundedChan[func()](r.ctx, 16)
	r.running.Store(true)

	r.wg.Add(1)
	go r.run()

	r.logger.Info("lots refresher started",
		"interval", r.cfg.Interval,
		"lazy_load_offset", r.cfg.LazyLoadOffset,
	)

	return nil
}

// Stop shuts down the loop and waits for in-flight fetches.
func (r *Refresher) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.running.Store(false)
		r.logger.Info("lots refresher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the event loop. Every mutation of the windows happens here.
func (r *Refresher) run() {
	defer r.wg.Done()
	defer r.disarm()
	defer r.stopCountdown()

	for {
		var timerC, lotC <-chan time.Time
		if r.timer != nil {
			timerC = r.timer.C
		}
		if r.lotTimer != nil {
			lotC = r.lotTimer.C
		}

		select {
		case <-r.ctx.Done():
			return
		case fn, ok := <-r.queue.Out:
			if !ok {
				return
			}
			fn()
		case <-timerC:
			r.timer = nil
			r.timerArmed.Store(false)
			r.refresh(KindPrimary)
		case <-lotC:
			r.lotTimer = nil
			r.refresh(KindSecondary)
		}
	}
}

// post queues fn on the loop without waiting.
func (r *Refresher) post(fn func()) bool {
	if !r.running.Load() {
		return false
	}
	select {
	case r.queue.In <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// exec runs fn on the loop and waits for it. Before Start the caller owns
// the windows and fn runs inline.
func (r *Refresher) exec(ctx context.Context, fn func()) error {
	if !r.running.Load() {
		fn()
		return nil
	}

	done := make(chan struct{})
	if !r.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNotRunning
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.ctx.Done():
		return ErrNotRunning
	}
}

// Do runs fn on the loop, serialized with reconciliation.
func (r *Refresher) Do(ctx context.Context, fn func()) error {
	return r.exec(ctx, fn)
}

// View runs fn against the current windows on the loop. fn may modify
// them. full is nil unless a lazy load offset is configured.
func (r *Refresher) View(ctx context.Context, fn func(visible, full *model.LotCollection)) error {
	return r.exec(ctx, func() { fn(r.visible, r.full) })
}

// Init installs the initial page and arms the timer. With a lazy load
// offset the page becomes the full window and the visible window holds
// copies of its first lots plus placeholders.
func (r *Refresher) Init(ctx context.Context, initial *model.LotCollection, auction *model.AuctionRef) error {
	if initial == nil {
		initial = &model.LotCollection{}
	}
	if r.heartbeats != nil {
		if err := r.heartbeats.ClearHeartbeat(ctx); err != nil {
			r.logger.Warn("failed to clear heartbeat", "error", err)
		}
	}

	return r.exec(ctx, func() {
		r.auction = auction
		r.install(initial)
		r.rearm()
		r.armCountdown()

		r.logger.Info("lots initialized",
			"lots", initial.Len(),
			"visible", r.visible.Len(),
		)
	})
}

// install makes c the page's windows, replacing whatever was there. The
// registry is kept.
func (r *Refresher) install(c *model.LotCollection) {
	r.rec.Prepare(c)
	if r.cfg.LazyLoadOffset > 0 {
		r.full = c
		r.visible = lotview.SplitWindows(c, r.cfg.LazyLoadOffset)
		r.rec.SyncRegistrations(r.visible)
		return
	}
	r.full = nil
	r.visible = c
}

// Load replaces placeholders around position center of the visible
// window with the loaded lots. It returns how many were loaded.
func (r *Refresher) Load(ctx context.Context, center int) (int, error) {
	var loaded int
	err := r.exec(ctx, func() {
		loaded = lotview.FillWindow(r.visible, r.full, center, r.cfg.LazyLoadOffset)
	})
	return loaded, err
}

// SetQuery replaces the lots query and fetches with it. Responses to
// fetches made with the old query are discarded, and the first page of the
// new query replaces the windows instead of being merged into them.
func (r *Refresher) SetQuery(ctx context.Context, params api.QueryParams) error {
	return r.exec(ctx, func() {
		r.query = params
		r.querySeq = r.nextSeq + 1
		r.queryPending = true
		r.refresh(KindQuery)
	})
}

// Query returns the current lots query.
func (r *Refresher) Query(ctx context.Context) (api.QueryParams, error) {
	var q api.QueryParams
	err := r.exec(ctx, func() { q = r.query })
	return q, err
}

// RequestSecondary asks for an extra refresh. It is honoured at most once
// per polling period.
func (r *Refresher) RequestSecondary() bool {
	return r.post(func() { r.refresh(KindSecondary) })
}

// RequestAuctionEnd refreshes after an auction closed, regardless of push
// availability or the refreshable policy.
func (r *Refresher) RequestAuctionEnd() bool {
	return r.post(func() { r.refresh(KindAuctionEnd) })
}

// PushAvailabilityChanged re-evaluates the timer. Polling stops while push
// is available and resumes when it is lost.
func (r *Refresher) PushAvailabilityChanged(available bool) {
	r.post(func() {
		r.logger.Info("push availability changed", "available", available)
		r.rearm()
	})
}

// HandlePush applies a push message.
func (r *Refresher) HandlePush(msg connection.Message) {
	if !r.post(func() { r.handlePush(msg) }) {
		r.logger.Debug("push message dropped, refresher not running", "type", msg.Type)
	}
}

func (r *Refresher) handlePush(msg connection.Message) {
	switch msg.Type {
	case connection.TypeLotsChanged, connection.TypeAuctionEnd:
		r.refresh(KindAuctionEnd)
	case connection.TypeLotUpdate:
		if len(msg.Lot) == 0 {
			r.logger.Debug("lot update without lot")
			return
		}
		var lot model.LotRecord
		if err := json.Unmarshal(msg.Lot, &lot); err != nil {
			r.fail(fmt.Errorf("decode pushed lot: %w", err))
			return
		}
		if r.queryPending || !r.holds(lot.RowID) {
			r.logger.Debug("ignoring lot update outside the page", "row_id", lot.RowID)
			return
		}
		r.nextSeq++
		page := &model.LotCollection{ResultPage: []*model.LotRecord{&lot}}
		r.apply(r.nextSeq, KindPush, page, nil)
	default:
		r.logger.Debug("ignoring push message", "type", msg.Type)
	}
}

// holds reports whether either window has a record with rowID.
func (r *Refresher) holds(rowID int64) bool {
	for _, c := range []*model.LotCollection{r.visible, r.full} {
		if c == nil {
			continue
		}
		if lot, _ := c.Find(rowID); lot != nil {
			return true
		}
	}
	return false
}

// refresh handles one trigger on the loop.
func (r *Refresher) refresh(kind Kind) {
	if r.allowed(kind) {
		r.startFetch(kind)
	}
	if kind == KindSecondary {
		r.gate = false
		return
	}
	r.rearm()
}

func (r *Refresher) allowed(kind Kind) bool {
	switch kind {
	case KindAuctionEnd, KindPush, KindQuery:
		return true
	case KindSecondary:
		if !r.gate {
			return false
		}
	}
	if r.pushAvailable() {
		return false
	}
	lots := r.visible
	if r.full != nil {
		lots = r.full
	}
	return r.refreshable(r.auction, lots)
}

func (r *Refresher) pushAvailable() bool {
	return r.push != nil && r.push.Available()
}

// rearm cancels the pending timer and, unless push is available, starts a
// new polling period.
func (r *Refresher) rearm() {
	r.disarm()
	if r.pushAvailable() {
		return
	}
	r.timer = time.NewTimer(r.cfg.Interval)
	r.timerArmed.Store(true)
	r.gate = true
}

func (r *Refresher) disarm() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.timerArmed.Store(false)
}

// armCountdown schedules a secondary refresh for when the first open lot's
// countdown reaches zero.
func (r *Refresher) armCountdown() {
	r.stopCountdown()

	lots := r.visible
	if r.full != nil {
		lots = r.full
	}
	if lots == nil {
		return
	}

	var next time.Duration
	for _, lot := range lots.ResultPage {
		if lot == nil || lot.IsPlaceholder() || lot.IsClosed() {
			continue
		}
		if d := r.countdown(lot); d > 0 && (next == 0 || d < next) {
			next = d
		}
	}
	if next > 0 {
		r.lotTimer = time.NewTimer(next)
	}
}

func (r *Refresher) stopCountdown() {
	if r.lotTimer != nil {
		r.lotTimer.Stop()
		r.lotTimer = nil
	}
}

// startFetch fetches off the loop and posts the result back.
func (r *Refresher) startFetch(kind Kind) {
	if !r.running.Load() {
		return
	}
	r.nextSeq++
	seq := r.nextSeq
	query := r.query

	r.logger.Debug("lots refresh", "kind", kind, "seq", seq)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx, cancel := context.WithTimeout(r.ctx, r.cfg.FetchTimeout)
		defer cancel()

		page, err := r.fetcher.FetchLots(ctx, query)
		r.post(func() { r.apply(seq, kind, page, err) })
	}()
}

// apply reconciles a fetched page unless a newer one was applied already.
func (r *Refresher) apply(seq int64, kind Kind, page *model.LotCollection, err error) {
	if seq <= r.appliedSeq || seq < r.querySeq {
		r.stale.Add(1)
		r.logger.Debug("discarding lots response",
			"error", ErrStaleResponse,
			"seq", seq,
			"applied_seq", r.appliedSeq,
		)
		return
	}
	if err != nil {
		r.fail(err)
		return
	}
	if page == nil {
		page = &model.LotCollection{}
	}
	if r.visible == nil {
		r.visible = &model.LotCollection{}
	}

	r.appliedSeq = seq
	r.applied.Store(seq)

	var vis, full reconcile.Result
	switch {
	case r.queryPending:
		r.queryPending = false
		r.install(page)
		r.logger.Info("lots query applied", "seq", seq, "lots", page.Len())
	case kind == KindPush:
		vis, full = r.rec.UpdateWindows(r.visible, r.full, page)
	default:
		vis, full = r.rec.ReconcileWindows(r.visible, r.full, page)
	}
	r.armCountdown()

	now := time.Now()
	r.refreshes.Add(1)
	r.lastRefresh.Store(now.UnixNano())

	r.logger.Debug("lots applied",
		"kind", kind,
		"seq", seq,
		"matched", vis.Matched,
		"appended", vis.Appended,
		"full_matched", full.Matched,
		"full_appended", full.Appended,
	)

	if r.onUpdate != nil {
		r.onUpdate(r.visible, r.full)
	}
	if r.observer != nil {
		r.observer.Observe(seq, now, page.ResultPage)
	}
}

func (r *Refresher) fail(err error) {
	r.errs.Add(1)
	r.onError(err)
}

// Stats returns the current counters. Safe from any goroutine.
func (r *Refresher) Stats() Stats {
	s := Stats{
		AppliedSeq: r.applied.Load(),
		Refreshes:  r.refreshes.Load(),
		Stale:      r.stale.Load(),
		Errors:     r.errs.Load(),
		TimerArmed: r.timerArmed.Load(),
	}
	if ns := r.lastRefresh.Load(); ns != 0 {
		s.LastRefresh = time.Unix(0, ns)
	}
	return s
}
