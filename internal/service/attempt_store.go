package service

import (
	"context"
	"time"

	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
)

// AttemptStore is the transactional boundary of the attempt lifecycle. Every
// engine operation runs inside one InTx call; the store is the only
// synchronization point between server instances.
type AttemptStore interface {
	InTx(ctx context.Context, fn func(tx AttemptTx) error) error
}

// AttemptTx is the set of reads and writes available inside a transaction.
// Lookups return ErrNotFound when the row does not exist.
type AttemptTx interface {
	// LockStudentSimulado serializes start calls for one (simulado, student) pair.
	LockStudentSimulado(ctx context.Context, simuladoID int64, studentID string) error

	CurrentEnrollment(ctx context.Context, studentID string) (*model.Enrollment, error)
	GetSimulado(ctx context.Context, id int64) (*model.Simulado, error)
	ListSimuladosForTurma(ctx context.Context, ano int, turma string) ([]model.Simulado, error)
	LinkedQuestionIDs(ctx context.Context, simuladoID int64) ([]int64, error)
	GetQuestion(ctx context.Context, id int64) (*model.Question, error)

	HasActiveBlock(ctx context.Context, simuladoID int64, studentID string) (bool, error)
	HasSubmitted(ctx context.Context, simuladoID int64, studentID string) (bool, error)
	LatestAttempt(ctx context.Context, simuladoID int64, studentID string) (*model.Attempt, error)
	LatestAttemptsByStudent(ctx context.Context, studentID string) (map[int64]*model.Attempt, error)
	BlockedSimuladoIDs(ctx context.Context, studentID string) (map[int64]bool, error)

	// InsertAttempt fills ID. It returns ErrConflict when another in-progress
	// or submitted attempt already exists for the pair.
	InsertAttempt(ctx context.Context, a *model.Attempt) error
	// GetAttemptForUpdate row-locks the attempt until the transaction ends.
	GetAttemptForUpdate(ctx context.Context, id int64) (*model.Attempt, error)

	GetAnswer(ctx context.Context, attemptID, questionID int64) (*model.AttemptAnswer, error)
	UpsertAnswer(ctx context.Context, ans *model.AttemptAnswer) error
	CountAnswers(ctx context.Context, attemptID int64) (answered, correct int, err error)
	// SubjectBreakdown groups the frozen question order by materia, ordered by name.
	SubjectBreakdown(ctx context.Context, attemptID int64) ([]model.SubjectScore, error)

	IncrementViolations(ctx context.Context, attemptID int64) (int, error)
	// FinishAttempt persists status, reason, result and block columns of a.
	FinishAttempt(ctx context.Context, a *model.Attempt) error
	SetBlock(ctx context.Context, attemptID int64, reason, note, by string, at time.Time) error
	ReleaseBlocks(ctx context.Context, simuladoID int64, studentID, by string, at time.Time) (int64, error)

	// ExpiredInProgress lists up to limit overdue attempts, skipping rows
	// another transaction holds at that moment.
	ExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]int64, error)

	ListBlocked(ctx context.Context) ([]model.BlockedAttempt, error)
	ListSubmittedByStudent(ctx context.Context, studentID string) ([]model.StudentResult, error)
}

// pgAttemptStore runs engine transactions on PostgreSQL.
type pgAttemptStore struct {
	repo *repository.AttemptRepository
}

var _ AttemptTx = (*repository.AttemptTx)(nil)

// NewPgAttemptStore adapts the attempt repository to AttemptStore.
func NewPgAttemptStore(repo *repository.AttemptRepository) AttemptStore {
	return pgAttemptStore{repo: repo}
}

func (s pgAttemptStore) InTx(ctx context.Context, fn func(tx AttemptTx) error) error {
	return s.repo.InTx(ctx, func(tx *repository.AttemptTx) error {
		return fn(tx)
	})
}
