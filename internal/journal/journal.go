// Package journal persists received task updates to Postgres in batches.
//
// The journal is an optional sink: syncd runs without it, and journal
// failures never feed back into the connection or refresh policy. Rows are
// append-only.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/annolab/annosync/internal/task"
)

// Execer is the database capability the journal needs. Satisfied by
// *pgxpool.Pool.
type Execer interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds journal settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits in the buffer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
	}
}

// Metrics counts journal activity.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// updateRow is the database shape of a task update.
type updateRow struct {
	ID         uuid.UUID
	TaskID     string
	Status     string
	Progress   *float64
	Message    string
	Timestamp  int64
	Source     string
	ReceivedAt int64 // µs since epoch
}

// Journal batches task updates and writes them to the task_updates table.
type Journal struct {
	cfg    Config
	db     Execer
	logger *slog.Logger

	batchMu sync.Mutex
	batch   []updateRow
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Journal writing through db.
func New(cfg Config, db Execer, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}

	return &Journal{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "journal"),
		batch:  make([]updateRow, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (j *Journal) Start(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.flushLoop()

	j.logger.Info("journal started",
		"batch_size", j.cfg.BatchSize,
		"flush_interval", j.cfg.FlushInterval,
	)
	return nil
}

// Stop flushes outstanding rows and shuts down.
func (j *Journal) Stop(ctx context.Context) error {
	if j.cancel != nil {
		j.cancel()
	}

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		j.logger.Warn("journal stop timed out")
	}

	// Final flush with the caller's deadline, not the cancelled run context.
	j.flush(ctx)
	j.logger.Info("journal stopped")
	return nil
}

// Record buffers one task update for persistence.
func (j *Journal) Record(u task.Update) {
	row := updateRow{
		ID:         uuid.New(),
		TaskID:     u.TaskID,
		Status:     u.Status,
		Progress:   u.Progress,
		Message:    u.Message,
		Timestamp:  u.Timestamp,
		Source:     u.Source,
		ReceivedAt: u.ReceivedAt.UnixMicro(),
	}

	j.batchMu.Lock()
	j.batch = append(j.batch, row)
	shouldFlush := len(j.batch) >= j.cfg.BatchSize
	j.batchMu.Unlock()

	if shouldFlush {
		j.flush(j.ctx)
	}
}

// Stats returns current metrics.
func (j *Journal) Stats() Metrics {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return j.metrics
}

// Pending returns the number of buffered rows.
func (j *Journal) Pending() int {
	j.batchMu.Lock()
	defer j.batchMu.Unlock()
	return len(j.batch)
}

// flushLoop periodically flushes the buffer.
func (j *Journal) flushLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.flush(j.ctx)
		}
	}
}

// flush writes the current buffer to the database.
func (j *Journal) flush(ctx context.Context) {
	j.batchMu.Lock()
	if len(j.batch) == 0 {
		j.batchMu.Unlock()
		return
	}
	batch := j.batch
	j.batch = make([]updateRow, 0, j.cfg.BatchSize)
	j.batchMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	if err := j.batchInsert(ctx, batch); err != nil {
		j.logger.Error("batch insert failed", "error", err, "count", len(batch))
		j.batchMu.Lock()
		j.metrics.Errors++
		j.metrics.Dropped += int64(len(batch))
		j.batchMu.Unlock()
		return
	}

	j.batchMu.Lock()
	j.metrics.Inserts += int64(len(batch))
	j.metrics.Flushes++
	j.batchMu.Unlock()

	j.logger.Debug("flushed task updates",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (j *Journal) batchInsert(ctx context.Context, rows []updateRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO task_updates (id, task_id, status, progress, message, ts, source, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, r.ID, r.TaskID, r.Status, r.Progress, r.Message, r.Timestamp, r.Source, r.ReceivedAt)
	}

	results := j.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
