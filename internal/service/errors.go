package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/simulado-backend/internal/repository"
)

// Lookup errors raised by stores.
var (
	ErrNotFound = repository.ErrNotFound
	ErrConflict = repository.ErrConflict
)

// Scheduling errors: rejected before any state change.
var (
	ErrSimuladoBlocked       = errors.New("simulado blocked for this student")
	ErrAlreadyCompleted      = errors.New("simulado already completed")
	ErrNoEnrollment          = errors.New("student has no turma for the current year")
	ErrSimuladoNotFound      = errors.New("simulado not found for student turma")
	ErrOutsideWindow         = errors.New("simulado outside its scheduled window")
	ErrNoQuestionsConfigured = errors.New("simulado has no questions configured")
)

// Attempt errors.
var (
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAttemptFinished   = errors.New("attempt already finished")
	ErrAttemptInProgress = errors.New("attempt still in progress")
	ErrInvalidPosition   = errors.New("question position out of range")
	ErrInvalidAnswer     = errors.New("invalid answer")
	ErrNotBlocked        = errors.New("attempt is not blocked")
	ErrAttemptRace       = errors.New("concurrent attempt creation")
)

// Simulado administration errors.
var (
	ErrQuestionLimit     = errors.New("simulado question limit reached")
	ErrQuestionLinked    = errors.New("question already linked to simulado")
	ErrQuestionNotLinked = errors.New("question not linked to simulado")
	ErrInvalidWindow     = errors.New("fim_em must be after inicio_em")
	ErrSameTurma         = errors.New("target turma equals source turma")
	ErrDuplicateSimulado = errors.New("simulado already exists for target turma")
	ErrLimitBelowLinked  = errors.New("num_questoes below linked question count")
	ErrQuestionInUse     = errors.New("question linked to a simulado or answered in an attempt")
)

// Auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionReplaced    = errors.New("session replaced by a newer login")
)

// IncompleteError rejects a submit while positions are unanswered.
type IncompleteError struct {
	Missing  int
	Answered int
	Total    int
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("%d of %d questions unanswered", e.Missing, e.Total)
}
