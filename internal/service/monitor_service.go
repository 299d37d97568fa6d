package service

import (
	"context"
	"time"

	"github.com/stemsi/simulado-backend/internal/model"
)

// MonitorStore reads the live state of a simulado.
type MonitorStore interface {
	Snapshot(ctx context.Context, simuladoID int64) ([]model.MonitorRow, error)
}

// MonitorStats aggregates a snapshot.
type MonitorStats struct {
	Joined     int `json:"total_iniciados"`
	InProgress int `json:"em_andamento"`
	Submitted  int `json:"enviados"`
	Expired    int `json:"expirados"`
	Blocked    int `json:"bloqueados"`
	Violations int `json:"total_avisos"`
}

// MonitorSnapshot is the first SSE event a staff monitor receives.
type MonitorSnapshot struct {
	Simulado *model.Simulado   `json:"simulado"`
	Stats    MonitorStats      `json:"stats"`
	Students []model.MonitorRow `json:"alunos"`
}

// MonitorService orchestrates live simulado monitoring.
type MonitorService struct {
	store     MonitorStore
	simulados SimuladoStore
	now       func() time.Time
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(store MonitorStore, simulados SimuladoStore) *MonitorService {
	return &MonitorService{store: store, simulados: simulados, now: time.Now}
}

// Snapshot returns every student's latest attempt with effective status.
func (s *MonitorService) Snapshot(ctx context.Context, simuladoID int64) (*MonitorSnapshot, error) {
	sim, err := s.simulados.GetByID(ctx, simuladoID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Snapshot(ctx, simuladoID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := &MonitorSnapshot{Simulado: sim, Students: make([]model.MonitorRow, 0, len(rows))}
	for _, r := range rows {
		if r.Status == model.AttemptInProgress && now.After(r.EndsAt) {
			r.Status = model.AttemptExpired
		}
		switch r.Status {
		case model.AttemptInProgress:
			out.Stats.InProgress++
		case model.AttemptSubmitted:
			out.Stats.Submitted++
		case model.AttemptExpired:
			out.Stats.Expired++
		}
		if r.Blocked {
			out.Stats.Blocked++
		}
		out.Stats.Violations += r.Violations
		out.Students = append(out.Students, r)
	}
	out.Stats.Joined = len(rows)
	return out, nil
}
