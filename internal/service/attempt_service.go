package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/observability"
)

// DefaultMaxViolations is the proctoring signal count that closes an attempt.
const DefaultMaxViolations = 3

// AttemptService owns every transition of an attempt. Callers never derive
// eligibility on their own; a rejection from here is final.
type AttemptService struct {
	store         AttemptStore
	events        EventSink
	log           zerolog.Logger
	now           func() time.Time
	shuffle       Shuffler
	maxViolations int
}

// AttemptOption customizes an AttemptService.
type AttemptOption func(*AttemptService)

// WithClock replaces the server clock.
func WithClock(now func() time.Time) AttemptOption {
	return func(s *AttemptService) { s.now = now }
}

// WithShuffler replaces the random source used for frozen orders.
func WithShuffler(fn Shuffler) AttemptOption {
	return func(s *AttemptService) { s.shuffle = fn }
}

// WithMaxViolations changes the violation threshold.
func WithMaxViolations(n int) AttemptOption {
	return func(s *AttemptService) {
		if n > 0 {
			s.maxViolations = n
		}
	}
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(store AttemptStore, events EventSink, log zerolog.Logger, opts ...AttemptOption) *AttemptService {
	if events == nil {
		events = NopEventSink{}
	}
	s := &AttemptService{
		store:         store,
		events:        events,
		log:           log.With().Str("component", "attempt_service").Logger(),
		now:           time.Now,
		maxViolations: DefaultMaxViolations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxViolations returns the configured threshold.
func (s *AttemptService) MaxViolations() int {
	return s.maxViolations
}

// ─── Views ──────────────────────────────────────────────────────────

// StartOutcome is the answer to a start/continue call.
type StartOutcome struct {
	AttemptID int64                `json:"tentativa_id"`
	Resumed   bool                 `json:"continuar"`
	EndsAt    time.Time            `json:"termina_em"`
	Total     int                  `json:"total"`
	Finalized *model.AttemptResult `json:"resultado,omitempty"`
}

// AttemptSummary is the state of an attempt as seen by its owner.
type AttemptSummary struct {
	AttemptID        int64                `json:"tentativa_id"`
	SimuladoID       int64                `json:"simulado_id"`
	Titulo           string               `json:"titulo"`
	Status           model.AttemptStatus  `json:"status"`
	State            model.AttemptState   `json:"estado"`
	Violations       int                  `json:"avisos"`
	MaxViolations    int                  `json:"max_avisos"`
	StartedAt        time.Time            `json:"iniciado_em"`
	EndsAt           time.Time            `json:"termina_em"`
	RemainingSeconds int64                `json:"restante_segundos"`
	Total            int                  `json:"total"`
	Answered         int                  `json:"respondidas"`
	Result           *model.AttemptResult `json:"resultado,omitempty"`
}

// Progress is the navigation counter for a question page.
type Progress struct {
	Current int `json:"atual"`
	Total   int `json:"total"`
}

// QuestionView is one position of the frozen order.
type QuestionView struct {
	AttemptID        int64                     `json:"tentativa_id"`
	Question         *model.QuestionForStudent `json:"questao,omitempty"`
	Marked           *model.Choice             `json:"marcada"`
	Progress         Progress                  `json:"progresso"`
	EndsAt           time.Time                 `json:"termina_em"`
	RemainingSeconds int64                     `json:"restante_segundos"`
	Violations       int                       `json:"avisos"`
	Finalized        *model.AttemptResult      `json:"resultado,omitempty"`
}

// AnswerOutcome acknowledges a recorded answer.
type AnswerOutcome struct {
	AttemptID  int64                `json:"tentativa_id"`
	QuestionID int64                `json:"questao_id"`
	Position   int                  `json:"posicao"`
	Choice     model.Choice         `json:"marcada"`
	Saved      bool                 `json:"salvo"`
	Answered   int                  `json:"respondidas"`
	Total      int                  `json:"total"`
	Finalized  *model.AttemptResult `json:"resultado,omitempty"`
}

// ViolationOutcome reports the counter after a proctoring signal.
type ViolationOutcome struct {
	AttemptID     int64                `json:"tentativa_id"`
	Violations    int                  `json:"avisos"`
	MaxViolations int                  `json:"max_avisos"`
	Closed        bool                 `json:"encerrado"`
	Finalized     *model.AttemptResult `json:"resultado,omitempty"`
}

// ReleaseOutcome reports a cleared block.
type ReleaseOutcome struct {
	AttemptID  int64     `json:"tentativa_id"`
	SimuladoID int64     `json:"simulado_id"`
	StudentID  string    `json:"matricula"`
	Released   int64     `json:"liberadas"`
	ReleasedAt time.Time `json:"liberado_em"`
	ReleasedBy string    `json:"liberado_por"`
}

// ─── Start / continue ───────────────────────────────────────────────

// Start creates an attempt or returns the one already in progress. An
// in-progress attempt found past its deadline is finalized and its result
// returned instead.
func (s *AttemptService) Start(ctx context.Context, studentID string, simuladoID int64) (*StartOutcome, error) {
	out, err := s.start(ctx, studentID, simuladoID)
	if errors.Is(err, ErrAttemptRace) {
		// The competing insert has committed by now; the retry resumes it.
		out, err = s.start(ctx, studentID, simuladoID)
	}
	return out, err
}

func (s *AttemptService) start(ctx context.Context, studentID string, simuladoID int64) (*StartOutcome, error) {
	now := s.now()
	var (
		out     StartOutcome
		pending eventBatch
		outcome string
	)

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		if err := tx.LockStudentSimulado(ctx, simuladoID, studentID); err != nil {
			return fmt.Errorf("lock student simulado: %w", err)
		}

		blocked, err := tx.HasActiveBlock(ctx, simuladoID, studentID)
		if err != nil {
			return fmt.Errorf("check block: %w", err)
		}
		if blocked {
			return ErrSimuladoBlocked
		}

		submitted, err := tx.HasSubmitted(ctx, simuladoID, studentID)
		if err != nil {
			return fmt.Errorf("check submitted: %w", err)
		}
		if submitted {
			return ErrAlreadyCompleted
		}

		enr, err := tx.CurrentEnrollment(ctx, studentID)
		if errors.Is(err, ErrNotFound) {
			return ErrNoEnrollment
		}
		if err != nil {
			return fmt.Errorf("get enrollment: %w", err)
		}

		sim, err := tx.GetSimulado(ctx, simuladoID)
		if errors.Is(err, ErrNotFound) {
			return ErrSimuladoNotFound
		}
		if err != nil {
			return fmt.Errorf("get simulado: %w", err)
		}
		if sim.Ano != enr.Ano || sim.Turma != enr.Turma {
			return ErrSimuladoNotFound
		}

		latest, err := tx.LatestAttempt(ctx, simuladoID, studentID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("get latest attempt: %w", err)
		}
		if latest != nil && latest.Status == model.AttemptInProgress {
			a, err := tx.GetAttemptForUpdate(ctx, latest.ID)
			if err != nil {
				return fmt.Errorf("lock attempt: %w", err)
			}
			if a.DeadlinePassed(now) {
				res, err := s.finalize(ctx, tx, a, sim, model.FinishTimeout, "", now)
				if err != nil {
					return err
				}
				out = StartOutcome{AttemptID: a.ID, EndsAt: a.EndsAt, Total: a.Total(), Finalized: res}
				pending.finalized(a, res, now)
				outcome = "expired"
				return nil
			}
			out = StartOutcome{AttemptID: a.ID, Resumed: true, EndsAt: a.EndsAt, Total: a.Total()}
			pending.add(AttemptEvent{Type: EventAttemptResumed, SimuladoID: a.SimuladoID, AttemptID: a.ID, StudentID: studentID, At: now})
			outcome = "resumed"
			return nil
		}

		if !sim.WindowContains(now) {
			return ErrOutsideWindow
		}

		linked, err := tx.LinkedQuestionIDs(ctx, simuladoID)
		if err != nil {
			return fmt.Errorf("list linked questions: %w", err)
		}
		order, err := BuildFrozenOrder(linked, s.shuffle)
		if err != nil {
			return err
		}

		a := &model.Attempt{
			SimuladoID:    simuladoID,
			StudentID:     studentID,
			StartedAt:     now,
			EndsAt:        now.Add(sim.Duration()),
			Status:        model.AttemptInProgress,
			QuestionOrder: order,
		}
		if err := tx.InsertAttempt(ctx, a); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrAttemptRace
			}
			return fmt.Errorf("insert attempt: %w", err)
		}

		out = StartOutcome{AttemptID: a.ID, EndsAt: a.EndsAt, Total: a.Total()}
		pending.add(AttemptEvent{Type: EventAttemptStarted, SimuladoID: simuladoID, AttemptID: a.ID, StudentID: studentID, At: now})
		outcome = "created"
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.AttemptsStarted().WithLabelValues(outcome).Inc()
	s.flush(ctx, pending)
	s.log.Info().
		Int64("attempt_id", out.AttemptID).
		Int64("simulado_id", simuladoID).
		Str("student", studentID).
		Str("outcome", outcome).
		Msg("Attempt start")
	return &out, nil
}

// ─── Reads with lazy expiry ─────────────────────────────────────────

// Summary returns the attempt state, finalizing it first when its deadline passed.
func (s *AttemptService) Summary(ctx context.Context, studentID string, attemptID int64) (*AttemptSummary, error) {
	now := s.now()
	var (
		out     AttemptSummary
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

		answered, _, err := tx.CountAnswers(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("count answers: %w", err)
		}

		out = AttemptSummary{
			AttemptID:        a.ID,
			SimuladoID:       a.SimuladoID,
			Titulo:           sim.Titulo,
			Status:           a.Status,
			State:            a.State(),
			Violations:       a.Violations,
			MaxViolations:    s.maxViolations,
			StartedAt:        a.StartedAt,
			EndsAt:           a.EndsAt,
			RemainingSeconds: a.RemainingSeconds(now),
			Total:            a.Total(),
			Answered:         answered,
		}
		if a.IsTerminal() {
			out.Result = resultOf(a, sim)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return &out, nil
}

// Question returns the question at a 1-based position with the student's
// current mark. Terminal attempts return only the finalized result.
func (s *AttemptService) Question(ctx context.Context, studentID string, attemptID int64, position int) (*QuestionView, error) {
	now := s.now()
	var (
		out     QuestionView
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

		out = QuestionView{
			AttemptID:  a.ID,
			Progress:   Progress{Current: position, Total: a.Total()},
			EndsAt:     a.EndsAt,
			Violations: a.Violations,
		}
		if a.IsTerminal() {
			out.Finalized = resultOf(a, sim)
			return nil
		}

		questionID, ok := a.QuestionAt(position)
		if !ok {
			return ErrInvalidPosition
		}
		q, err := tx.GetQuestion(ctx, questionID)
		if err != nil {
			return fmt.Errorf("get question %d: %w", questionID, err)
		}
		view := q.ForStudent()
		out.Question = &view
		out.RemainingSeconds = a.RemainingSeconds(now)

		ans, err := tx.GetAnswer(ctx, a.ID, questionID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("get answer: %w", err)
		}
		if ans != nil {
			choice := ans.Choice
			out.Marked = &choice
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return &out, nil
}

// ─── Writes ─────────────────────────────────────────────────────────

// RecordAnswer upserts the answer for one question of the frozen order.
// Correctness is graded against the question's key at write time.
func (s *AttemptService) RecordAnswer(ctx context.Context, studentID string, attemptID int64, req model.AnswerRequest) (*AnswerOutcome, error) {
	now := s.now()
	var (
		out     AnswerOutcome
		pending eventBatch
	)

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, sim, err := s.ownedAttempt(ctx, tx, studentID, attemptID)
		if err != nil {
			return err
		}
		if a.IsTerminal() {
			return ErrAttemptFinished
		}
		out = AnswerOutcome{AttemptID: a.ID, QuestionID: req.QuestionID, Choice: req.Choice, Total: a.Total()}

		if a.DeadlinePassed(now) {
			res, err := s.finalize(ctx, tx, a, sim, model.FinishTimeout, "", now)
			if err != nil {
				return err
			}
			out.Finalized = res
			pending.finalized(a, res, now)
			return nil
		}

		if !req.Choice.Valid() {
			return ErrInvalidAnswer
		}
		position, ok := a.PositionOf(req.QuestionID)
		if !ok {
			return ErrInvalidAnswer
		}
		q, err := tx.GetQuestion(ctx, req.QuestionID)
		if err != nil {
			return fmt.Errorf("get question %d: %w", req.QuestionID, err)
		}

		ans := &model.AttemptAnswer{
			AttemptID:  a.ID,
			QuestionID: q.ID,
			Position:   position,
			Choice:     req.Choice,
			Correct:    q.IsCorrect(req.Choice),
			UpdatedAt:  now,
		}
		if err := tx.UpsertAnswer(ctx, ans); err != nil {
			return fmt.Errorf("upsert answer: %w", err)
		}

		answered, _, err := tx.CountAnswers(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("count answers: %w", err)
		}
		out.Position = position
		out.Saved = true
		out.Answered = answered
		pending.add(AttemptEvent{Type: EventAnswerRecorded, SimuladoID: a.SimuladoID, AttemptID: a.ID, StudentID: studentID, Answered: answered, At: now})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return &out, nil
}

// ReportViolation counts one proctoring signal. Reaching the threshold
// finalizes and blocks the attempt in the same transaction.
func (s *AttemptService) ReportViolation(ctx context.Context, studentID string, attemptID int64, req model.ViolationRequest) (*ViolationOutcome, error) {
	now := s.now()
	var (
		out     ViolationOutcome
		pending eventBatch
		counted bool
	)

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, sim, err := s.ownedAttempt(ctx, tx, studentID, attemptID)
		if err != nil {
			return err
		}
		if err := s.expireIfDue(ctx, tx, a, sim, now, &pending); err != nil {
			return err
		}
		out = ViolationOutcome{AttemptID: a.ID, Violations: a.Violations, MaxViolations: s.maxViolations}
		if a.IsTerminal() {
			out.Closed = true
			out.Finalized = resultOf(a, sim)
			return nil
		}

		n, err := tx.IncrementViolations(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("increment violations: %w", err)
		}
		a.Violations = n
		out.Violations = n
		counted = true
		pending.add(AttemptEvent{Type: EventViolation, SimuladoID: a.SimuladoID, AttemptID: a.ID, StudentID: studentID, Violations: n, Kind: req.Kind, At: now})

		if n >= s.maxViolations {
			res, err := s.finalize(ctx, tx, a, sim, model.FinishViolations, "", now)
			if err != nil {
				return err
			}
			out.Closed = true
			out.Finalized = res
			pending.finalized(a, res, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if counted {
		observability.Violations().WithLabelValues(string(req.Kind)).Inc()
		s.events.RecordViolation(ctx, ViolationRecord{
			AttemptID:  out.AttemptID,
			Kind:       req.Kind,
			Detail:     req.Detail,
			RecordedAt: now.UnixMilli(),
		})
	}
	s.flush(ctx, pending)
	return &out, nil
}

// Submit finalizes an attempt whose every position has an answer. Calling it
// on a finished attempt returns the stored result.
func (s *AttemptService) Submit(ctx context.Context, studentID string, attemptID int64) (*model.AttemptResult, error) {
	now := s.now()
	var (
		out     *model.AttemptResult
		pending eventBatch
	)

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, sim, err := s.ownedAttempt(ctx, tx, studentID, attemptID)
		if err != nil {
			return err
		}
		if a.IsTerminal() {
			out = resultOf(a, sim)
			return nil
		}
		if a.DeadlinePassed(now) {
			res, err := s.finalize(ctx, tx, a, sim, model.FinishTimeout, "", now)
			if err != nil {
				return err
			}
			out = res
			pending.finalized(a, res, now)
			return nil
		}

		answered, _, err := tx.CountAnswers(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("count answers: %w", err)
		}
		if answered < a.Total() {
			return &IncompleteError{Missing: a.Total() - answered, Answered: answered, Total: a.Total()}
		}

		res, err := s.finalize(ctx, tx, a, sim, model.FinishSubmit, "", now)
		if err != nil {
			return err
		}
		out = res
		pending.finalized(a, res, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return out, nil
}

// ─── Staff controls ─────────────────────────────────────────────────

// ListBlocked returns every attempt holding an active block.
func (s *AttemptService) ListBlocked(ctx context.Context) ([]model.BlockedAttempt, error) {
	var out []model.BlockedAttempt
	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		rows, err := tx.ListBlocked(ctx)
		out = rows
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list blocked: %w", err)
	}
	if out == nil {
		out = []model.BlockedAttempt{}
	}
	return out, nil
}

// Release clears every active block the student holds on the attempt's simulado.
func (s *AttemptService) Release(ctx context.Context, staffID string, attemptID int64) (*ReleaseOutcome, error) {
	now := s.now()
	var out ReleaseOutcome

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, err := tx.GetAttemptForUpdate(ctx, attemptID)
		if errors.Is(err, ErrNotFound) {
			return ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if !a.Blocked {
			return ErrNotBlocked
		}
		n, err := tx.ReleaseBlocks(ctx, a.SimuladoID, a.StudentID, staffID, now)
		if err != nil {
			return fmt.Errorf("release blocks: %w", err)
		}
		out = ReleaseOutcome{
			AttemptID:  a.ID,
			SimuladoID: a.SimuladoID,
			StudentID:  a.StudentID,
			Released:   n,
			ReleasedAt: now,
			ReleasedBy: staffID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, AttemptEvent{Type: EventBlockReleased, SimuladoID: out.SimuladoID, AttemptID: out.AttemptID, StudentID: out.StudentID, At: now})
	s.log.Info().
		Int64("attempt_id", out.AttemptID).
		Str("student", out.StudentID).
		Str("released_by", staffID).
		Int64("released", out.Released).
		Msg("Block released")
	return &out, nil
}

// Block places a staff block on an attempt. An in-progress attempt is
// finalized first, since a block only exists on finished attempts. note is
// the staff's free-text reason and may be empty.
func (s *AttemptService) Block(ctx context.Context, staffID string, attemptID int64, note string) (*model.AttemptResult, error) {
	now := s.now()
	var (
		out     *model.AttemptResult
		pending eventBatch
	)

	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, err := tx.GetAttemptForUpdate(ctx, attemptID)
		if errors.Is(err, ErrNotFound) {
			return ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		sim, err := tx.GetSimulado(ctx, a.SimuladoID)
		if err != nil {
			return fmt.Errorf("get simulado: %w", err)
		}

		switch {
		case !a.IsTerminal():
			if note != "" {
				a.BlockNote = &note
			}
			res, err := s.finalize(ctx, tx, a, sim, model.FinishStaffBlock, staffID, now)
			if err != nil {
				return err
			}
			out = res
			pending.finalized(a, res, now)
		case !a.Blocked:
			if err := tx.SetBlock(ctx, a.ID, string(model.FinishStaffBlock), note, staffID, now); err != nil {
				return fmt.Errorf("set block: %w", err)
			}
			applyBlock(a, model.FinishStaffBlock, staffID, now)
			if note != "" {
				a.BlockNote = &note
			}
			out = resultOf(a, sim)
		default:
			out = resultOf(a, sim)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, pending)
	return out, nil
}

// SweepExpired finalizes up to limit in-progress attempts past their deadline,
// so stored status stays truthful for attempts nobody touches again. Each
// attempt is finalized in its own transaction; one that fails is logged and
// left for the next sweep without holding back the rest of the batch.
func (s *AttemptService) SweepExpired(ctx context.Context, limit int) (int, error) {
	now := s.now()

	var ids []int64
	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		found, err := tx.ExpiredInProgress(ctx, now, limit)
		ids = found
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	swept := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return swept, err
		}
		done, err := s.expireOne(ctx, id, now)
		if err != nil {
			s.log.Error().Err(err).Int64("attempt_id", id).Msg("Expire attempt failed")
			continue
		}
		if done {
			swept++
		}
	}
	return swept, nil
}

// expireOne finalizes one overdue attempt. It reports false when another
// path finalized the attempt first.
func (s *AttemptService) expireOne(ctx context.Context, id int64, now time.Time) (bool, error) {
	var (
		pending eventBatch
		done    bool
	)
	err := s.store.InTx(ctx, func(tx AttemptTx) error {
		a, err := tx.GetAttemptForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if a.IsTerminal() {
			return nil
		}
		sim, err := tx.GetSimulado(ctx, a.SimuladoID)
		if err != nil {
			return fmt.Errorf("get simulado %d: %w", a.SimuladoID, err)
		}
		res, err := s.finalize(ctx, tx, a, sim, model.FinishTimeout, "", now)
		if err != nil {
			return err
		}
		pending.finalized(a, res, now)
		done = true
		return nil
	})
	if err != nil {
		return false, err
	}
	s.flush(ctx, pending)
	return done, nil
}

// ─── Internals ──────────────────────────────────────────────────────

// ownedAttempt locks the attempt and hides attempts of other students.
func (s *AttemptService) ownedAttempt(ctx context.Context, tx AttemptTx, studentID string, attemptID int64) (*model.Attempt, *model.Simulado, error) {
	a, err := tx.GetAttemptForUpdate(ctx, attemptID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock attempt: %w", err)
	}
	if a.StudentID != studentID {
		return nil, nil, ErrAttemptNotFound
	}
	sim, err := tx.GetSimulado(ctx, a.SimuladoID)
	if err != nil {
		return nil, nil, fmt.Errorf("get simulado: %w", err)
	}
	return a, sim, nil
}

// expireIfDue applies the lazy timeout transition.
func (s *AttemptService) expireIfDue(ctx context.Context, tx AttemptTx, a *model.Attempt, sim *model.Simulado, now time.Time, pending *eventBatch) error {
	if a.IsTerminal() || !a.DeadlinePassed(now) {
		return nil
	}
	res, err := s.finalize(ctx, tx, a, sim, model.FinishTimeout, "", now)
	if err != nil {
		return err
	}
	pending.finalized(a, res, now)
	return nil
}

// finalize moves an in-progress attempt to its terminal state. A terminal
// attempt is returned as stored, never recomputed.
func (s *AttemptService) finalize(ctx context.Context, tx AttemptTx, a *model.Attempt, sim *model.Simulado, reason model.FinishReason, by string, now time.Time) (*model.AttemptResult, error) {
	if a.IsTerminal() {
		return resultOf(a, sim), nil
	}

	_, correct, err := tx.CountAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	score := ComputeScore(correct, sim.NumQuestoes, sim.ValorTotal)

	status := model.AttemptExpired
	if reason == model.FinishSubmit {
		status = model.AttemptSubmitted
	}
	finishedAt := now
	a.Status = status
	a.FinishReason = &reason
	a.FinishedAt = &finishedAt
	a.CorrectCount = &score.Correct
	a.Grade = &score.Grade
	if reason.Blocks() {
		applyBlock(a, reason, by, now)
	}

	if err := tx.FinishAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("finish attempt: %w", err)
	}
	return resultOf(a, sim), nil
}

func applyBlock(a *model.Attempt, reason model.FinishReason, by string, at time.Time) {
	r := string(reason)
	blockedAt := at
	a.Blocked = true
	a.BlockedReason = &r
	a.BlockedAt = &blockedAt
	if by != "" {
		a.BlockedBy = &by
	}
}

func resultOf(a *model.Attempt, sim *model.Simulado) *model.AttemptResult {
	res := &model.AttemptResult{
		AttemptID:  a.ID,
		Finalized:  a.IsTerminal(),
		Status:     a.Status,
		Total:      a.Total(),
		TotalValue: sim.ValorTotal,
		Blocked:    a.Blocked,
		FinishedAt: a.FinishedAt,
	}
	if a.FinishReason != nil {
		res.Reason = *a.FinishReason
	}
	if a.CorrectCount != nil {
		res.CorrectCount = *a.CorrectCount
	}
	if a.Grade != nil {
		res.Grade = *a.Grade
	}
	return res
}

// eventBatch collects events during a transaction; they go out after commit.
type eventBatch struct {
	events []AttemptEvent
}

func (b *eventBatch) add(ev AttemptEvent) {
	b.events = append(b.events, ev)
}

func (b *eventBatch) finalized(a *model.Attempt, res *model.AttemptResult, at time.Time) {
	b.add(AttemptEvent{
		Type:       EventAttemptFinalized,
		SimuladoID: a.SimuladoID,
		AttemptID:  a.ID,
		StudentID:  a.StudentID,
		Violations: a.Violations,
		Result:     res,
		At:         at,
	})
}

func (s *AttemptService) flush(ctx context.Context, b eventBatch) {
	for _, ev := range b.events {
		if ev.Type == EventAttemptFinalized && ev.Result != nil {
			observability.AttemptsFinalized().WithLabelValues(string(ev.Result.Reason)).Inc()
			s.log.Info().
				Int64("attempt_id", ev.AttemptID).
				Str("student", ev.StudentID).
				Str("reason", string(ev.Result.Reason)).
				Float64("grade", ev.Result.Grade).
				Msg("Attempt finalized")
		}
		s.events.Publish(ctx, ev)
	}
}
