package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/observability"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/service"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWriter persists audit rows.
type ViolationWriter interface {
	CopyMany(ctx context.Context, batch []repository.ViolationRow) error
	Insert(ctx context.Context, v repository.ViolationRow) error
}

// ViolationAuditWorker drains the violation queue into attempt_violations.
// The counter on the attempt row is authoritative; this table is the
// per-signal trail staff look at afterwards.
type ViolationAuditWorker struct {
	store ViolationWriter
	rdb   *redis.Client
	log   zerolog.Logger
	// backoff is the pause after requeueing, so a database outage is not hammered.
	backoff time.Duration
}

// NewViolationAuditWorker creates a new ViolationAuditWorker.
func NewViolationAuditWorker(store ViolationWriter, rdb *redis.Client, log zerolog.Logger) *ViolationAuditWorker {
	return &ViolationAuditWorker{
		store:   store,
		rdb:     rdb,
		log:     log.With().Str("component", "violation_audit_worker").Logger(),
		backoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *ViolationAuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationAuditWorker started")

	buffer := make([]service.ViolationRecord, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop returns at once when data exists, else after PollTimeout.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.Keys.ViolationAuditQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var rec service.ViolationRecord
		if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation record")
			observability.AuditRows().WithLabelValues("dropped").Inc()
			continue
		}
		buffer = append(buffer, rec)
	}
}

// flushSafe tries the COPY fast path, then row by row.
func (w *ViolationAuditWorker) flushSafe(ctx context.Context, batch []service.ViolationRecord) {
	rows := make([]repository.ViolationRow, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, toRow(rec))
	}

	if err := w.store.CopyMany(ctx, rows); err != nil {
		w.log.Warn().Err(err).Int("count", len(rows)).Msg("Bulk copy failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch, rows)
		return
	}
	observability.AuditRows().WithLabelValues("bulk").Add(float64(len(rows)))
}

func (w *ViolationAuditWorker) fallbackInsert(ctx context.Context, batch []service.ViolationRecord, rows []repository.ViolationRow) {
	requeue := make([]service.ViolationRecord, 0)

	for i, row := range rows {
		err := w.store.Insert(ctx, row)
		switch {
		case err == nil:
			observability.AuditRows().WithLabelValues("fallback").Inc()
		case isDataError(err):
			// The attempt may have been deleted with its simulado.
			w.log.Error().Err(err).Int64("attempt_id", row.AttemptID).Msg("Dropping rejected violation record")
			observability.AuditRows().WithLabelValues("dropped").Inc()
		default:
			w.log.Error().Err(err).Int64("attempt_id", row.AttemptID).Msg("Insert failed, requeueing")
			requeue = append(requeue, batch[i])
		}
	}

	if len(requeue) > 0 {
		w.requeue(ctx, requeue)
	}
}

func (w *ViolationAuditWorker) requeue(ctx context.Context, items []service.ViolationRecord) {
	pipe := w.rdb.Pipeline()
	for _, rec := range items {
		data, _ := json.Marshal(rec)
		pipe.RPush(ctx, config.Keys.ViolationAuditQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violation records. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed violation records")
	sleepCtx(ctx, w.backoff)
}

func (w *ViolationAuditWorker) shutdown(buffer []service.ViolationRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")
	if len(buffer) == 0 {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func toRow(rec service.ViolationRecord) repository.ViolationRow {
	detail := []byte("{}")
	if rec.Detail != "" {
		if b, err := json.Marshal(map[string]string{"detalhe": rec.Detail}); err == nil {
			detail = b
		}
	}
	return repository.ViolationRow{
		AttemptID:  rec.AttemptID,
		Kind:       string(rec.Kind),
		Detail:     detail,
		RecordedAt: time.UnixMilli(rec.RecordedAt).UTC(),
	}
}

// isDataError reports integrity and data exceptions, which a retry cannot fix.
func isDataError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || len(pgErr.Code) < 2 {
		return false
	}
	class := pgErr.Code[:2]
	return class == "23" || class == "22"
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
