package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/model"
)

// AttemptEventType names what happened to an attempt.
type AttemptEventType string

const (
	EventAttemptStarted   AttemptEventType = "attempt_started"
	EventAttemptResumed   AttemptEventType = "attempt_resumed"
	EventAnswerRecorded   AttemptEventType = "answer_recorded"
	EventViolation        AttemptEventType = "violation"
	EventAttemptFinalized AttemptEventType = "attempt_finalized"
	EventBlockReleased    AttemptEventType = "block_released"
)

// AttemptEvent is published to staff monitors after a transaction commits.
type AttemptEvent struct {
	Type       AttemptEventType     `json:"type"`
	SimuladoID int64                `json:"simulado_id"`
	AttemptID  int64                `json:"tentativa_id"`
	StudentID  string               `json:"matricula"`
	Answered   int                  `json:"respondidas,omitempty"`
	Violations int                  `json:"avisos,omitempty"`
	Kind       model.ViolationKind  `json:"tipo,omitempty"`
	Result     *model.AttemptResult `json:"resultado,omitempty"`
	At         time.Time            `json:"at"`
}

// ViolationRecord is one accepted proctoring signal queued for the audit trail.
type ViolationRecord struct {
	AttemptID  int64               `json:"attempt_id"`
	Kind       model.ViolationKind `json:"kind"`
	Detail     string              `json:"detail,omitempty"`
	RecordedAt int64               `json:"recorded_at"` // unix millis
}

// EventSink receives post-commit notifications. Delivery is best effort:
// attempt state is already durable when these run.
type EventSink interface {
	Publish(ctx context.Context, ev AttemptEvent)
	RecordViolation(ctx context.Context, rec ViolationRecord)
}

// RedisEventSink fans events out over Pub/Sub and queues violation audit rows.
type RedisEventSink struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisEventSink creates a RedisEventSink.
func NewRedisEventSink(rdb *redis.Client, log zerolog.Logger) *RedisEventSink {
	return &RedisEventSink{
		rdb: rdb,
		log: log.With().Str("component", "attempt_events").Logger(),
	}
}

// Publish sends ev to the simulado's monitor channel.
func (s *RedisEventSink) Publish(ctx context.Context, ev AttemptEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal attempt event")
		return
	}
	channel := config.Keys.SimuladoMonitorChannel(ev.SimuladoID)
	if err := s.rdb.Publish(ctx, channel, data).Err(); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("Publish attempt event failed")
	}
}

// RecordViolation pushes rec onto the audit queue drained by the worker.
func (s *RedisEventSink) RecordViolation(ctx context.Context, rec ViolationRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error().Err(err).Msg("Marshal violation record")
		return
	}
	if err := s.rdb.RPush(ctx, config.Keys.ViolationAuditQueue, data).Err(); err != nil {
		s.log.Warn().Err(err).Int64("attempt_id", rec.AttemptID).Msg("Queue violation record failed")
	}
}

// NopEventSink drops everything.
type NopEventSink struct{}

func (NopEventSink) Publish(context.Context, AttemptEvent) {}
func (NopEventSink) RecordViolation(context.Context, ViolationRecord) {}
