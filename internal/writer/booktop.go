// Package writer persists streamed book tops to TimescaleDB in batches.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openderiv/ledgerx-data/internal/config"
	"github.com/openderiv/ledgerx-data/model"
)

// BookTopWriter consumes book tops from a channel and writes them to the
// book_tops table in batches.
type BookTopWriter struct {
	cfg    config.WriterConfig
	logger *slog.Logger

	// Input from the stream consumer
	input chan model.BookTop

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []bookTopRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Dropped   int64
	Flushes   int64
}

// bookTopRow mirrors the book_tops table. Prices stay in integer cents in
// the database; display conversion happens at read time.
type bookTopRow struct {
	ExchangeTS int64
	ReceivedAt int64
	ContractID int64
	BidCents   int64
	BidSize    int64
	AskCents   int64
	AskSize    int64
}

// NewBookTopWriter creates a new BookTopWriter.
func NewBookTopWriter(cfg config.WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *BookTopWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookTopWriter{
		cfg:    cfg,
		logger: logger,
		input:  make(chan model.BookTop, cfg.BufferSize),
		db:     db,
		batch:  make([]bookTopRow, 0, cfg.BatchSize),
	}
}

// Write enqueues a book top without blocking; overflow is dropped and
// counted.
func (w *BookTopWriter) Write(top model.BookTop) {
	select {
	case w.input <- top:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Warn("writer buffer full, dropping book top", "contract_id", top.ContractID)
	}
}

// Start begins consuming book tops and writing to the database.
func (w *BookTopWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("book top writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing any buffered rows.
func (w *BookTopWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping book top writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("book top writer stopped")
	case <-ctx.Done():
		w.logger.Warn("book top writer stop timed out")
	}

	// Final flush
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *BookTopWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input channel and accumulates batches.
func (w *BookTopWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case top := <-w.input:
			w.batchMu.Lock()
			w.batch = append(w.batch, transform(top))
			shouldFlush := len(w.batch) >= w.cfg.BatchSize
			w.batchMu.Unlock()

			if shouldFlush {
				w.flush()
			}
		}
	}
}

// flushLoop periodically flushes partial batches.
func (w *BookTopWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func transform(top model.BookTop) bookTopRow {
	return bookTopRow{
		ExchangeTS: top.Timestamp,
		ReceivedAt: top.ReceivedAt,
		ContractID: top.ContractID,
		BidCents:   model.ToCents(top.BidPrice),
		BidSize:    top.BidSize,
		AskCents:   model.ToCents(top.AskPrice),
		AskSize:    top.AskSize,
	}
}

// flush writes the current batch to the database.
func (w *BookTopWriter) flush() {
	w.batchMu.Lock()
	batch := w.batch
	w.batch = make([]bookTopRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if len(batch) == 0 {
		return
	}

	start := time.Now()
	conflicts, err := w.batchInsert(batch)

	w.batchMu.Lock()
	if err != nil {
		w.metrics.Errors++
	} else {
		w.metrics.Inserts += int64(len(batch) - conflicts)
		w.metrics.Conflicts += int64(conflicts)
	}
	w.metrics.Flushes++
	w.batchMu.Unlock()

	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		return
	}

	w.logger.Debug("flushed book tops",
		"rows", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows with ON CONFLICT DO NOTHING.
func (w *BookTopWriter) batchInsert(rows []bookTopRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_tops (exchange_ts, received_at, contract_id, bid, bid_size, ask, ask_size)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (contract_id, exchange_ts) DO NOTHING
		`, r.ExchangeTS, r.ReceivedAt, r.ContractID, r.BidCents, r.BidSize, r.AskCents, r.AskSize)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
