package bidding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/lot-watch/internal/api"
	"github.com/rickgao/lot-watch/internal/model"
	"github.com/rickgao/lot-watch/internal/registration"
)

// ErrNoBulkBids is returned when no lot is marked for bulk bidding.
var ErrNoBulkBids = errors.New("no bulk bids to submit")

// Messages shown when the server rounded a bid down.
const (
	RoundedTitle   = "Bid Rounded Down to Nearest Bid Increment"
	RoundedContent = "Feel free to increase your absentee bid to the next increment."
)

// BidModeView is the _bidMode of a lot whose bid was accepted.
const BidModeView = "view"

// Client is the part of the lots API the submitter needs.
type Client interface {
	SubmitBids(ctx context.Context, auctionID int64, bids []api.BidSubmission) (*api.BidResponse, error)
	FetchLot(ctx context.Context, lotID int64, fieldset string) (*model.LotRecord, error)
}

// Executor runs fn serialized with every other change to the lots.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Inline runs functions on the calling goroutine. Use it when the caller
// is the only owner of the lots.
type Inline struct{}

// Do calls fn.
func (Inline) Do(_ context.Context, fn func()) error {
	fn()
	return nil
}

// Config holds submitter configuration.
type Config struct {
	RoundingMessageDuration time.Duration // How long the rounding message stays open (default: 5s)
	RefetchConcurrency      int           // Max concurrent lot detail requests (default: 4)

	// BidsInLotObject accepts results even when the response carries no
	// bidder profile.
	BidsInLotObject bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RoundingMessageDuration: 5 * time.Second,
		RefetchConcurrency:      4,
	}
}

// Result summarizes one bulk submission.
type Result struct {
	Submitted int
	Accepted  int
	Rounded   int
	Refetched int
}

// Submitter posts bulk absentee bids.
type Submitter struct {
	cfg      Config
	client   Client
	exec     Executor
	registry *registration.Registry
	logger   *slog.Logger

	mu     sync.Mutex
	timers []*time.Timer
}

// NewSubmitter creates a Submitter. A nil exec runs inline.
func NewSubmitter(cfg Config, client Client, exec Executor, registry *registration.Registry, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = Inline{}
	}
	defaults := DefaultConfig()
	if cfg.RoundingMessageDuration <= 0 {
		cfg.RoundingMessageDuration = defaults.RoundingMessageDuration
	}
	if cfg.RefetchConcurrency <= 0 {
		cfg.RefetchConcurrency = defaults.RefetchConcurrency
	}
	return &Submitter{
		cfg:      cfg,
		client:   client,
		exec:     exec,
		registry: registry,
		logger:   logger,
	}
}

// Submit posts every bulk bid of c for the auction, applies the results
// to the lots and refreshes them from the lot detail endpoint.
func (s *Submitter) Submit(ctx context.Context, auctionID int64, c *model.LotCollection) (Result, error) {
	var bids []Bid
	if err := s.exec.Do(ctx, func() {
		bids = Collect(c)
		s.setInProgress(c, bids, true)
	}); err != nil {
		return Result{}, err
	}
	if len(bids) == 0 {
		return Result{}, ErrNoBulkBids
	}

	submissions := make([]api.BidSubmission, len(bids))
	for i, b := range bids {
		submissions[i] = b.Submission
	}
	res := Result{Submitted: len(bids)}

	resp, err := s.client.SubmitBids(ctx, auctionID, submissions)
	if err != nil {
		if doErr := s.exec.Do(context.WithoutCancel(ctx), func() {
			s.setInProgress(c, bids, false)
		}); doErr != nil {
			s.logger.Warn("failed to reset bid state", "error", doErr)
		}
		return res, err
	}

	if err := s.exec.Do(ctx, func() {
		res.Accepted, res.Rounded = s.applyResults(c, bids, resp)
	}); err != nil {
		return res, err
	}
	if res.Rounded > 0 {
		s.scheduleClear(c, bids)
	}

	details, err := s.refetch(ctx, resp.ResultPage)
	if doErr := s.exec.Do(context.WithoutCancel(ctx), func() {
		res.Refetched = s.applyDetails(c, bids, resp.ResultPage, details)
	}); doErr != nil {
		return res, doErr
	}

	s.logger.Info("bulk bids submitted",
		"auction_id", auctionID,
		"submitted", res.Submitted,
		"accepted", res.Accepted,
		"rounded", res.Rounded,
		"refetched", res.Refetched,
	)
	return res, err
}

// Close stops pending rounding message timers.
func (s *Submitter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// current returns the lots of c that are still on the page for bids,
// in bid order. Missing lots are nil.
func current(c *model.LotCollection, bids []Bid) []*model.LotRecord {
	lots := make([]*model.LotRecord, len(bids))
	for i, b := range bids {
		lots[i], _ = c.Find(b.RowID)
	}
	return lots
}

func (s *Submitter) setInProgress(c *model.LotCollection, bids []Bid, v bool) {
	for _, lot := range current(c, bids) {
		if lot != nil && lot.WebModule != nil {
			lot.WebModule.UpdateInProgress = v
		}
	}
}

// applyResults matches results to bids by position.
func (s *Submitter) applyResults(c *model.LotCollection, bids []Bid, resp *api.BidResponse) (accepted, rounded int) {
	lots := current(c, bids)
	for i, lot := range lots {
		if lot == nil || lot.WebModule == nil {
			continue
		}
		lot.WebModule.UpdateInProgress = false

		if i >= len(resp.ResultPage) {
			continue
		}
		result := resp.ResultPage[i]
		if result.OutbidAbsenteeBid || !(resp.HasBidder() || s.cfg.BidsInLotObject) {
			continue
		}
		accepted++

		wm := lot.WebModule
		wm.AbsenteeBidEditMode = false
		wm.PreviousAbsenteeBidEditMode = false
		if cents(wm.AbsenteeBid.Amount) != cents(result.AcceptedAmount()) {
			wm.AbsenteeBid.RoundedAmountMessageOpen = true
			wm.AbsenteeBid.RoundedAmountMessageTitle = RoundedTitle
			wm.AbsenteeBid.RoundedAmountMessageContent = RoundedContent
			rounded++
		} else {
			wm.AbsenteeBid.RoundedAmountMessageTitle = ""
			wm.AbsenteeBid.RoundedAmountMessageContent = ""
		}
		lot.SetAnnotation("_bidMode", BidModeView)
	}
	return accepted, rounded
}

// scheduleClear closes every rounding message of the submission after
// the configured duration.
func (s *Submitter) scheduleClear(c *model.LotCollection, bids []Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := time.AfterFunc(s.cfg.RoundingMessageDuration, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.exec.Do(ctx, func() {
			for _, lot := range current(c, bids) {
				if lot != nil && lot.WebModule != nil {
					lot.WebModule.AbsenteeBid.RoundedAmountMessageOpen = false
				}
			}
		})
		if err != nil {
			s.logger.Debug("failed to clear rounding messages", "error", err)
		}
	})
	s.timers = append(s.timers, t)
}

// refetch loads the detail of every result lot. Failed lots are nil in
// the returned slice and the first error is returned.
func (s *Submitter) refetch(ctx context.Context, results []api.BidResult) ([]*model.LotRecord, error) {
	details := make([]*model.LotRecord, len(results))

	var g errgroup.Group
	g.SetLimit(s.cfg.RefetchConcurrency)
	for i, result := range results {
		g.Go(func() error {
			lot, err := s.client.FetchLot(ctx, result.AuctionLotID, api.FieldsetDetail)
			if err != nil {
				s.logger.Warn("failed to refetch lot",
					"lot_id", result.AuctionLotID,
					"error", err,
				)
				return fmt.Errorf("refetch lot %d: %w", result.AuctionLotID, err)
			}
			details[i] = lot
			return nil
		})
	}
	return details, g.Wait()
}

// applyDetails merges each fetched detail into the submitted lot with the
// same lot number. The registrations of the bid result and then of the
// detail are merged into the shared instance first so the lot keeps
// pointing at it.
func (s *Submitter) applyDetails(c *model.LotCollection, bids []Bid, results []api.BidResult, details []*model.LotRecord) int {
	lots := current(c, bids)
	applied := 0
	for i, detail := range details {
		if detail == nil {
			continue
		}
		if a := results[i].Auction; a != nil && a.Registration != nil {
			s.registry.Merge(a.RowID, a.Registration)
		}
		if a := detail.Auction; a != nil && a.Registration != nil {
			a.Registration = s.registry.Merge(a.RowID, a.Registration)
		}

		var target *model.LotRecord
		for _, lot := range lots {
			if lot != nil && lot.LotNumber == detail.LotNumber {
				target = lot
			}
		}
		if target == nil {
			continue
		}
		target.Extend(detail)
		if target.WebModule != nil {
			target.WebModule.BulkBid = false
		}
		applied++
	}
	return applied
}

func cents(v float64) int64 {
	return int64(math.Round(v * 100))
}
