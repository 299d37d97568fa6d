package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/simulado-backend/internal/model"
)

// Lobby actions offered to the student.
const (
	ActionStart       = "iniciar"
	ActionContinue    = "continuar"
	ActionUnavailable = "indisponivel"
)

// LobbyAttempt summarizes the student's latest attempt on a simulado.
// Status is the effective status: an in-progress attempt past its deadline
// is reported as expired even before anything finalizes it.
type LobbyAttempt struct {
	ID         int64               `json:"id"`
	Status     model.AttemptStatus `json:"status"`
	EndsAt     time.Time           `json:"termina_em"`
	Violations int                 `json:"avisos"`
	Grade      *float64            `json:"nota,omitempty"`
}

// LobbyEntry is one simulado of the student's turma.
type LobbyEntry struct {
	model.Simulado
	Attempt  *LobbyAttempt        `json:"tentativa"`
	Status   model.ScheduleStatus `json:"status_simulado"`
	Action   string               `json:"acao"`
	CanStart bool                 `json:"pode_iniciar"`
}

// Lobby is the student landing page payload.
type Lobby struct {
	Ano       int          `json:"ano,omitempty"`
	Turma     *string      `json:"turma"`
	Simulados []LobbyEntry `json:"simulados"`
}

// Lobby lists the simulados of the student's current turma with the action
// each one allows. It never mutates attempts.
func (s *AttemptService) Lobby(ctx context.Context, studentID string) (*Lobby, error) {
	now := s.now()
	out := &Lobby{Simulados: []LobbyEntry{}}

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		enr, err := tx.CurrentEnrollment(ctx, studentID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get enrollment: %w", err)
		}
		out.Ano = enr.Ano
		out.Turma = &enr.Turma

		sims, err := tx.ListSimuladosForTurma(ctx, enr.Ano, enr.Turma)
		if err != nil {
			return fmt.Errorf("list simulados: %w", err)
		}
		latest, err := tx.LatestAttemptsByStudent(ctx, studentID)
		if err != nil {
			return fmt.Errorf("latest attempts: %w", err)
		}
		blocked, err := tx.BlockedSimuladoIDs(ctx, studentID)
		if err != nil {
			return fmt.Errorf("blocked simulados: %w", err)
		}

		for _, sim := range sims {
			out.Simulados = append(out.Simulados, lobbyEntry(sim, latest[sim.ID], blocked[sim.ID], now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func lobbyEntry(sim model.Simulado, a *model.Attempt, blocked bool, now time.Time) LobbyEntry {
	entry := LobbyEntry{Simulado: sim}

	var active, submitted bool
	if a != nil {
		status := a.EffectiveStatus(now)
		entry.Attempt = &LobbyAttempt{
			ID:         a.ID,
			Status:     status,
			EndsAt:     a.EndsAt,
			Violations: a.Violations,
			Grade:      a.Grade,
		}
		active = status == model.AttemptInProgress
		submitted = status == model.AttemptSubmitted
		// Timeout finalization always blocks, so an overdue attempt is
		// already as good as blocked.
		if a.Status == model.AttemptInProgress && status == model.AttemptExpired {
			blocked = true
		}
	}

	open := sim.WindowContains(now)
	entry.Status = sim.ScheduleAt(now)
	if blocked {
		entry.Status = model.ScheduleBlocked
	}
	entry.CanStart = !blocked && !submitted && open

	switch {
	case active:
		entry.Action = ActionContinue
	case entry.CanStart:
		entry.Action = ActionStart
	default:
		entry.Action = ActionUnavailable
	}
	return entry
}

// Results lists the student's submitted attempts, newest first.
// SubjectBreakdown splits a finished attempt's score by materia. In-progress
// attempts are refused so the breakdown cannot hint at the answer key.
func (s *AttemptService) SubjectBreakdown(ctx context.Context, studentID string, attemptID int64) ([]model.SubjectScore, error) {
	now := s.now()
	var (
		out     []model.SubjectScore
		pending eventBatch
	)

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, sim, err := s.ownedAttempt(ctx, tx, studentID, attemptID)
		if err != nil {
			return err
		}
		if err := s.expireIfDue(ctx, tx, a, sim, now, &pending); err != nil {
			return err
		}
		if !a.IsTerminal() {
			return ErrAttemptInProgress
		}
		out, err = tx.SubjectBreakdown(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("subject breakdown: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	if out == nil {
		out = []model.SubjectScore{}
	}
	return out, nil
}

func (s *AttemptService) Results(ctx context.Context, studentID string) ([]model.StudentResult, error) {
	var out []model.StudentResult
	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		rows, err := tx.ListSubmittedByStudent(ctx, studentID)
		out = rows
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if out == nil {
		out = []model.StudentResult{}
	}
	return out, nil
}
