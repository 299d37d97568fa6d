package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
)

const attemptColumns = `id, simulado_id, student_id, started_at, ends_at, finished_at, status,
	finish_reason, violations, question_order, correct_count, grade,
	blocked, blocked_reason, blocked_at, blocked_by, block_note, released_at, released_by`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.SimuladoID, &a.StudentID, &a.StartedAt, &a.EndsAt, &a.FinishedAt, &a.Status,
		&a.FinishReason, &a.Violations, &a.QuestionOrder, &a.CorrectCount, &a.Grade,
		&a.Blocked, &a.BlockedReason, &a.BlockedAt, &a.BlockedBy, &a.BlockNote, &a.ReleasedAt, &a.ReleasedBy)
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// AttemptRepository runs attempt lifecycle transactions.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// InTx runs fn in a read-committed transaction. Row locks taken by fn are
// released on commit or rollback.
func (r *AttemptRepository) InTx(ctx context.Context, fn func(tx *AttemptTx) error) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&AttemptTx{q: tx})
	})
}

// AttemptTx exposes the statements of one lifecycle transaction.
type AttemptTx struct {
	q querier
}

// LockStudentSimulado takes a transaction-scoped advisory lock on the pair.
func (t *AttemptTx) LockStudentSimulado(ctx context.Context, simuladoID int64, studentID string) error {
	key := fmt.Sprintf("attempt:%d:%s", simuladoID, studentID)
	_, err := t.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

// CurrentEnrollment returns the student's turma for the most recent year.
func (t *AttemptTx) CurrentEnrollment(ctx context.Context, studentID string) (*model.Enrollment, error) {
	return currentEnrollment(ctx, t.q, studentID)
}

func (t *AttemptTx) GetSimulado(ctx context.Context, id int64) (*model.Simulado, error) {
	return getSimulado(ctx, t.q, id)
}

func (t *AttemptTx) ListSimuladosForTurma(ctx context.Context, ano int, turma string) ([]model.Simulado, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+simuladoColumns+` FROM simulados s
		 WHERE s.ano = $1 AND s.turma = $2
		 ORDER BY s.inicio_em, s.id`, ano, turma,
	)
	if err != nil {
		return nil, err
	}
	return collectSimulados(rows)
}

func (t *AttemptTx) LinkedQuestionIDs(ctx context.Context, simuladoID int64) ([]int64, error) {
	rows, err := t.q.Query(ctx,
		`SELECT question_id FROM simulado_questions
		 WHERE simulado_id = $1
		 ORDER BY ordem, question_id`, simuladoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *AttemptTx) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	return getQuestion(ctx, t.q, id)
}

func (t *AttemptTx) HasActiveBlock(ctx context.Context, simuladoID int64, studentID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM attempts
			WHERE simulado_id = $1 AND student_id = $2 AND blocked
		 )`, simuladoID, studentID,
	).Scan(&exists)
	return exists, err
}

func (t *AttemptTx) HasSubmitted(ctx context.Context, simuladoID int64, studentID string) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM attempts
			WHERE simulado_id = $1 AND student_id = $2 AND status = 'submitted'
		 )`, simuladoID, studentID,
	).Scan(&exists)
	return exists, err
}

func (t *AttemptTx) LatestAttempt(ctx context.Context, simuladoID int64, studentID string) (*model.Attempt, error) {
	return scanAttempt(t.q.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE simulado_id = $1 AND student_id = $2
		 ORDER BY id DESC
		 LIMIT 1`, simuladoID, studentID,
	))
}

// LatestAttemptsByStudent maps simulado id to the student's newest attempt on it.
func (t *AttemptTx) LatestAttemptsByStudent(ctx context.Context, studentID string) (map[int64]*model.Attempt, error) {
	rows, err := t.q.Query(ctx,
		`SELECT DISTINCT ON (simulado_id) `+attemptColumns+` FROM attempts
		 WHERE student_id = $1
		 ORDER BY simulado_id, id DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*model.Attempt)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out[a.SimuladoID] = a
	}
	return out, rows.Err()
}

func (t *AttemptTx) BlockedSimuladoIDs(ctx context.Context, studentID string) (map[int64]bool, error) {
	rows, err := t.q.Query(ctx,
		`SELECT DISTINCT simulado_id FROM attempts WHERE student_id = $1 AND blocked`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// InsertAttempt returns ErrConflict when a partial unique index rejects the row.
func (t *AttemptTx) InsertAttempt(ctx context.Context, a *model.Attempt) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO attempts (simulado_id, student_id, started_at, ends_at, status, question_order)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		a.SimuladoID, a.StudentID, a.StartedAt, a.EndsAt, a.Status, a.QuestionOrder,
	).Scan(&a.ID)
	return mapErr(err)
}

func (t *AttemptTx) GetAttemptForUpdate(ctx context.Context, id int64) (*model.Attempt, error) {
	return scanAttempt(t.q.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1 FOR UPDATE`, id,
	))
}

func (t *AttemptTx) GetAnswer(ctx context.Context, attemptID, questionID int64) (*model.AttemptAnswer, error) {
	ans := &model.AttemptAnswer{}
	err := t.q.QueryRow(ctx,
		`SELECT attempt_id, question_id, position, choice, correct, updated_at
		 FROM attempt_answers
		 WHERE attempt_id = $1 AND question_id = $2`, attemptID, questionID,
	).Scan(&ans.AttemptID, &ans.QuestionID, &ans.Position, &ans.Choice, &ans.Correct, &ans.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return ans, nil
}

func (t *AttemptTx) UpsertAnswer(ctx context.Context, ans *model.AttemptAnswer) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, position, choice, correct, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET position = EXCLUDED.position,
		     choice = EXCLUDED.choice,
		     correct = EXCLUDED.correct,
		     updated_at = EXCLUDED.updated_at`,
		ans.AttemptID, ans.QuestionID, ans.Position, ans.Choice, ans.Correct, ans.UpdatedAt,
	)
	return err
}

func (t *AttemptTx) CountAnswers(ctx context.Context, attemptID int64) (int, int, error) {
	var answered, correct int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE correct)
		 FROM attempt_answers WHERE attempt_id = $1`, attemptID,
	).Scan(&answered, &correct)
	return answered, correct, err
}

func (t *AttemptTx) SubjectBreakdown(ctx context.Context, attemptID int64) ([]model.SubjectScore, error) {
	rows, err := t.q.Query(ctx,
		`SELECT COALESCE(NULLIF(q.materia, ''), $2) AS materia,
		        COUNT(*),
		        COUNT(aa.question_id),
		        COUNT(*) FILTER (WHERE aa.correct)
		 FROM attempts a
		 CROSS JOIN LATERAL unnest(a.question_order) AS o(question_id)
		 JOIN questions q ON q.id = o.question_id
		 LEFT JOIN attempt_answers aa ON aa.attempt_id = a.id AND aa.question_id = o.question_id
		 WHERE a.id = $1
		 GROUP BY 1
		 ORDER BY 1`, attemptID, model.NoSubject,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SubjectScore
	for rows.Next() {
		var s model.SubjectScore
		if err := rows.Scan(&s.Materia, &s.Total, &s.Answered, &s.Correct); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *AttemptTx) IncrementViolations(ctx context.Context, attemptID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`UPDATE attempts SET violations = violations + 1
		 WHERE id = $1
		 RETURNING violations`, attemptID,
	).Scan(&n)
	return n, mapErr(err)
}

func (t *AttemptTx) FinishAttempt(ctx context.Context, a *model.Attempt) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finish_reason = $2, finished_at = $3, correct_count = $4, grade = $5,
		     blocked = $6, blocked_reason = $7, blocked_at = $8, blocked_by = $9, block_note = $10
		 WHERE id = $11 AND status = 'in_progress'`,
		a.Status, a.FinishReason, a.FinishedAt, a.CorrectCount, a.Grade,
		a.Blocked, a.BlockedReason, a.BlockedAt, a.BlockedBy, a.BlockNote, a.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBlock blocks a finished attempt. An empty note or by stores NULL.
func (t *AttemptTx) SetBlock(ctx context.Context, attemptID int64, reason, note, by string, at time.Time) error {
	_, err := t.q.Exec(ctx,
		`UPDATE attempts
		 SET blocked = TRUE, blocked_reason = $2, blocked_at = $3,
		     blocked_by = NULLIF($4, ''), block_note = NULLIF($5, '')
		 WHERE id = $1`, attemptID, reason, at, by, note,
	)
	return err
}

// ReleaseBlocks clears every active block of the pair and returns how many rows changed.
func (t *AttemptTx) ReleaseBlocks(ctx context.Context, simuladoID int64, studentID, by string, at time.Time) (int64, error) {
	tag, err := t.q.Exec(ctx,
		`UPDATE attempts
		 SET blocked = FALSE, released_at = $3, released_by = NULLIF($4, '')
		 WHERE simulado_id = $1 AND student_id = $2 AND blocked`,
		simuladoID, studentID, at, by,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *AttemptTx) ExpiredInProgress(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := t.q.Query(ctx,
		`SELECT id FROM attempts
		 WHERE status = 'in_progress' AND ends_at < $1
		 ORDER BY ends_at
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *AttemptTx) ListBlocked(ctx context.Context) ([]model.BlockedAttempt, error) {
	rows, err := t.q.Query(ctx,
		`SELECT a.id, a.simulado_id, s.titulo, s.turma, a.student_id, u.nome,
		        COALESCE(a.blocked_reason, ''), a.blocked_at, a.blocked_by, a.block_note,
		        a.violations, a.grade, a.correct_count
		 FROM attempts a
		 JOIN simulados s ON s.id = a.simulado_id
		 JOIN users u ON u.matricula = a.student_id
		 WHERE a.blocked
		 ORDER BY a.blocked_at DESC, a.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockedAttempt
	for rows.Next() {
		var b model.BlockedAttempt
		if err := rows.Scan(&b.AttemptID, &b.SimuladoID, &b.Titulo, &b.Turma, &b.StudentID, &b.StudentName,
			&b.Reason, &b.BlockedAt, &b.BlockedBy, &b.Note, &b.Violations, &b.Grade, &b.CorrectCount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *AttemptTx) ListSubmittedByStudent(ctx context.Context, studentID string) ([]model.StudentResult, error) {
	rows, err := t.q.Query(ctx,
		`SELECT a.id, a.simulado_id, s.titulo, s.unidade, a.finished_at,
		        a.correct_count, cardinality(a.question_order), a.grade, s.valor_total
		 FROM attempts a
		 JOIN simulados s ON s.id = a.simulado_id
		 WHERE a.student_id = $1 AND a.status = 'submitted'
		 ORDER BY a.finished_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StudentResult
	for rows.Next() {
		var r model.StudentResult
		if err := rows.Scan(&r.AttemptID, &r.SimuladoID, &r.Titulo, &r.Unidade, &r.FinishedAt,
			&r.CorrectCount, &r.Total, &r.Grade, &r.TotalValue); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
