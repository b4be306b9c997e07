package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/smallnest/chanx"

	"github.com/rickgao/lot-watch/internal/model"
)

// BatchSender sends a pgx batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	InstanceID    string
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int // Initial queue capacity; the queue grows past it
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Queued  int64
	Dropped int64
	Inserts int64
	Errors  int64
	Flushes int64
}

// observationRow is one lot_observations row.
type observationRow struct {
	ObservedAt    time.Time
	Seq           int64
	RowID         int64
	AuctionID     *int64
	LotNumber     string
	Status        string
	CurrentPrice  float64
	HighBidder    string
	TimeRemaining int64
}

const insertObservation = `
	INSERT INTO lot_observations
		(observed_at, instance_id, seq, row_id, auction_id, lot_number, status, current_price, high_bidder, time_remaining)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// ObservationWriter archives lot observations.
type ObservationWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     BatchSender

	// Input queue
	queue    *chanx.UnboundedChan[observationRow]
	queueMu  sync.RWMutex
	accepted bool

	// Batching
	batch       []observationRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	consumerDone chan struct{}

	// Metrics
	metrics WriterMetrics
}

// NewObservationWriter creates a new ObservationWriter.
func NewObservationWriter(cfg WriterConfig, db BatchSender, logger *slog.Logger) *ObservationWriter {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaults.BufferSize
	}
	return &ObservationWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]observationRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming observations and writing to the database. The
// writer outlives cancellation of ctx so rows still queued at shutdown are
// written; only Stop ends it.
func (w *ObservationWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)
	w.consumerDone = make(chan struct{})

	w.queueMu.Lock()
	w.queue = chanx.NewUnboundedChan[observationRow](w.ctx, w.cfg.BufferSize)
	w.accepted = true
	w.queueMu.Unlock()

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("observation writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the queue, stops the writer and flushes what is left.
func (w *ObservationWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping observation writer")

	w.queueMu.Lock()
	if w.accepted {
		w.accepted = false
		close(w.queue.In)
	}
	w.queueMu.Unlock()

	if w.consumerDone != nil {
		select {
		case <-w.consumerDone:
		case <-ctx.Done():
			w.logger.Warn("observation queue drain timed out")
		}
	}

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("observation writer stopped")
	case <-ctx.Done():
		w.logger.Warn("observation writer stop timed out")
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Observe queues one row per lot. It never blocks; rows are dropped when
// the writer is not running.
func (w *ObservationWriter) Observe(seq int64, observedAt time.Time, lots []*model.LotRecord) {
	w.queueMu.RLock()
	defer w.queueMu.RUnlock()

	var queued, dropped int64
	for _, lot := range lots {
		if lot == nil || lot.IsPlaceholder() {
			continue
		}
		if !w.accepted {
			dropped++
			continue
		}
		select {
		case w.queue.In <- transform(seq, observedAt, lot):
			queued++
		default:
			dropped++
		}
	}

	w.batchMu.Lock()
	w.metrics.Queued += queued
	w.metrics.Dropped += dropped
	w.batchMu.Unlock()
}

// Stats returns current metrics.
func (w *ObservationWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the queue and accumulates batches.
func (w *ObservationWriter) consumeLoop() {
	defer w.wg.Done()
	defer close(w.consumerDone)

	for row := range w.queue.Out {
		w.batchMu.Lock()
		w.batch = append(w.batch, row)
		shouldFlush := len(w.batch) >= w.cfg.BatchSize
		w.batchMu.Unlock()

		if shouldFlush {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *ObservationWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// transform converts a lot to an observationRow.
func transform(seq int64, observedAt time.Time, lot *model.LotRecord) observationRow {
	row := observationRow{
		ObservedAt:    observedAt,
		Seq:           seq,
		RowID:         lot.RowID,
		LotNumber:     lot.LotNumber + lot.LotNumberExtension,
		Status:        lot.Status,
		CurrentPrice:  lot.CurrentPrice,
		HighBidder:    lot.HighBidder,
		TimeRemaining: lot.TimeRemaining,
	}
	if lot.Auction != nil {
		id := lot.Auction.RowID
		row.AuctionID = &id
	}
	return row
}

// flush writes the current batch to the database.
func (w *ObservationWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]observationRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed observations",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *ObservationWriter) batchInsert(ctx context.Context, rows []observationRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertObservation,
			r.ObservedAt, w.cfg.InstanceID, r.Seq, r.RowID, r.AuctionID,
			r.LotNumber, r.Status, r.CurrentPrice, r.HighBidder, r.TimeRemaining,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
