package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stretchr/testify/require"
)

const staffID = "prof01"

// testPool migrates a scratch database from scratch. The tests are skipped
// unless TEST_DATABASE_URL points at a disposable Postgres.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	m, err := migrate.New("file://../../migrations", url)
	require.NoError(t, err)
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	require.NoError(t, m.Up())
	srcErr, dbErr := m.Close()
	require.NoError(t, srcErr)
	require.NoError(t, dbErr)

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type fixture struct {
	users     *UserRepository
	simulados *SimuladoRepository
	questions *QuestionRepository
	attempts  *AttemptRepository
	simulado  *model.Simulado
	questIDs  []int64
}

func seed(t *testing.T, pool *pgxpool.Pool, numQuestoes int) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		users:     NewUserRepository(pool),
		simulados: NewSimuladoRepository(pool),
		questions: NewQuestionRepository(pool),
		attempts:  NewAttemptRepository(pool),
	}

	require.NoError(t, f.users.Create(ctx, &model.User{Matricula: staffID, Nome: "Prof", Perfil: model.RoleProfessor, SenhaHash: "x"}))
	require.NoError(t, f.users.Create(ctx, &model.User{Matricula: "aluno01", Nome: "Aluno", Perfil: model.RoleStudent, SenhaHash: "x"}))
	require.NoError(t, f.users.Enroll(ctx, model.Enrollment{Ano: 2026, Matricula: "aluno01", Turma: "3A"}))

	by := staffID
	now := time.Now()
	f.simulado = &model.Simulado{
		Ano:         2026,
		Titulo:      "Simulado 1",
		Unidade:     "1",
		Turma:       "3A",
		InicioEm:    now.Add(-time.Hour),
		FimEm:       now.Add(time.Hour),
		DuracaoMin:  60,
		NumQuestoes: numQuestoes,
		ValorTotal:  10,
		CriadoPor:   &by,
	}
	require.NoError(t, f.simulados.Create(ctx, f.simulado))

	for i := 0; i < numQuestoes; i++ {
		q := &model.Question{
			Ano:          2026,
			Enunciado:    "Quanto é 1+1?",
			AlternativaA: "1",
			AlternativaB: "2",
			AlternativaC: "3",
			AlternativaD: "4",
			Correta:      "B",
			CriadaPor:    &by,
		}
		require.NoError(t, f.questions.Create(ctx, q))
		require.NoError(t, f.simulados.AddQuestion(ctx, f.simulado.ID, q.ID, staffID))
		f.questIDs = append(f.questIDs, q.ID)
	}
	return f
}

func newAttempt(f *fixture, now time.Time) *model.Attempt {
	return &model.Attempt{
		SimuladoID:    f.simulado.ID,
		StudentID:     "aluno01",
		StartedAt:     now,
		EndsAt:        now.Add(time.Hour),
		Status:        model.AttemptInProgress,
		QuestionOrder: f.questIDs,
	}
}

func TestIntegrationQuestionLimit(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 2)
	ctx := context.Background()

	by := staffID
	extra := &model.Question{
		Ano:          2026,
		Enunciado:    "extra",
		AlternativaA: "a",
		AlternativaB: "b",
		AlternativaC: "c",
		AlternativaD: "d",
		Correta:      "A",
		CriadaPor:    &by,
	}
	require.NoError(t, f.questions.Create(ctx, extra))
	require.ErrorIs(t, f.simulados.AddQuestion(ctx, f.simulado.ID, extra.ID, staffID), ErrLimitReached)
	require.ErrorIs(t, f.simulados.AddQuestion(ctx, f.simulado.ID, f.questIDs[0], staffID), ErrLimitReached)

	require.NoError(t, f.simulados.RemoveQuestion(ctx, f.simulado.ID, f.questIDs[0]))
	require.ErrorIs(t, f.simulados.AddQuestion(ctx, f.simulado.ID, f.questIDs[1], staffID), ErrConflict)

	linked, err := f.simulados.LinkedQuestions(ctx, f.simulado.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
}

func TestIntegrationOneActiveAttempt(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 2)
	ctx := context.Background()
	now := time.Now()

	first := newAttempt(f, now)
	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		return tx.InsertAttempt(ctx, first)
	}))

	err := f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		return tx.InsertAttempt(ctx, newAttempt(f, now))
	})
	require.ErrorIs(t, err, ErrConflict)

	latest, err := latestAttempt(t, f)
	require.NoError(t, err)
	require.Equal(t, first.ID, latest.ID)
	require.Equal(t, f.questIDs, latest.QuestionOrder)
}

func TestIntegrationFinishBlockRelease(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 2)
	ctx := context.Background()
	now := time.Now()

	a := newAttempt(f, now)
	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		if err := tx.InsertAttempt(ctx, a); err != nil {
			return err
		}
		return tx.UpsertAnswer(ctx, &model.AttemptAnswer{
			AttemptID: a.ID, QuestionID: f.questIDs[0], Position: 1, Choice: "B", Correct: true, UpdatedAt: now,
		})
	}))

	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		answered, correct, err := tx.CountAnswers(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 1, answered)
		require.Equal(t, 1, correct)

		n, err := tx.IncrementViolations(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		locked, err := tx.GetAttemptForUpdate(ctx, a.ID)
		require.NoError(t, err)
		reason := model.FinishViolations
		blockReason := string(reason)
		grade := 5.0
		locked.Status = model.AttemptExpired
		locked.FinishReason = &reason
		locked.FinishedAt = &now
		locked.CorrectCount = &correct
		locked.Grade = &grade
		locked.Blocked = true
		locked.BlockedReason = &blockReason
		locked.BlockedAt = &now
		return tx.FinishAttempt(ctx, locked)
	}))

	// A finished attempt cannot be finished twice.
	err := f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		again, err := tx.GetAttemptForUpdate(ctx, a.ID)
		require.NoError(t, err)
		return tx.FinishAttempt(ctx, again)
	})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		blocked, err := tx.HasActiveBlock(ctx, f.simulado.ID, "aluno01")
		require.NoError(t, err)
		require.True(t, blocked)

		rows, err := tx.ListBlocked(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, a.ID, rows[0].AttemptID)

		n, err := tx.ReleaseBlocks(ctx, f.simulado.ID, "aluno01", staffID, now)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		blocked, err = tx.HasActiveBlock(ctx, f.simulado.ID, "aluno01")
		require.NoError(t, err)
		require.False(t, blocked)
		return nil
	}))
}

func TestIntegrationExpiredInProgress(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 1)
	ctx := context.Background()
	past := time.Now().Add(-2 * time.Hour)

	a := newAttempt(f, past)
	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		return tx.InsertAttempt(ctx, a)
	}))

	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		ids, err := tx.ExpiredInProgress(ctx, time.Now(), 10)
		require.NoError(t, err)
		require.Equal(t, []int64{a.ID}, ids)
		return nil
	}))
}

func TestIntegrationViolationAudit(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 1)
	ctx := context.Background()
	now := time.Now()

	a := newAttempt(f, now)
	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		return tx.InsertAttempt(ctx, a)
	}))

	repo := NewViolationRepository(pool)
	require.NoError(t, repo.CopyMany(ctx, []ViolationRow{
		{AttemptID: a.ID, Kind: "tab_switch", Detail: []byte(`{}`), RecordedAt: now},
		{AttemptID: a.ID, Kind: "blur", Detail: []byte(`{"detalhe":"x"}`), RecordedAt: now},
	}))
	require.Error(t, repo.Insert(ctx, ViolationRow{AttemptID: a.ID + 999, Kind: "blur", Detail: []byte(`{}`), RecordedAt: now}))

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM attempt_violations WHERE attempt_id = $1`, a.ID).Scan(&n))
	require.Equal(t, 2, n)
}

func TestIntegrationUpdateBelowLinked(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 2)
	ctx := context.Background()

	shrink := *f.simulado
	shrink.NumQuestoes = 1
	require.ErrorIs(t, f.simulados.Update(ctx, &shrink), ErrLimitReached)

	grow := *f.simulado
	grow.NumQuestoes = 4
	grow.Titulo = "Simulado 1 revisado"
	require.NoError(t, f.simulados.Update(ctx, &grow))
	require.Equal(t, 2, grow.Vinculadas)

	missing := grow
	missing.ID = grow.ID + 999
	require.ErrorIs(t, f.simulados.Update(ctx, &missing), ErrNotFound)
}

func TestIntegrationQuestionSearchAndDelete(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 1)
	ctx := context.Background()

	by := staffID
	loose := &model.Question{
		Ano:          2026,
		Enunciado:    "Qual organela realiza a fotossíntese? 100%_certo",
		AlternativaA: "Cloroplasto",
		AlternativaB: "Mitocôndria",
		AlternativaC: "Ribossomo",
		AlternativaD: "Núcleo",
		Correta:      "A",
		Materia:      "Biologia",
		CriadaPor:    &by,
	}
	require.NoError(t, f.questions.Create(ctx, loose))

	found, total, err := f.questions.List(ctx, QuestionFilter{Ano: 2026, Search: "FOTOSSÍNTESE"}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, loose.ID, found[0].ID)

	_, total, err = f.questions.List(ctx, QuestionFilter{Ano: 2026, Search: "100%_"}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	_, total, err = f.questions.List(ctx, QuestionFilter{Ano: 2026, Search: "1_0"}, 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)

	found, total, err = f.questions.List(ctx, QuestionFilter{AllAnos: true, ExcludeSimulado: f.simulado.ID}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, loose.ID, found[0].ID)

	require.ErrorIs(t, f.questions.Delete(ctx, f.questIDs[0]), ErrReferenced)
	require.NoError(t, f.questions.Delete(ctx, loose.ID))
	require.ErrorIs(t, f.questions.Delete(ctx, loose.ID), ErrNotFound)
}

func TestIntegrationSubjectBreakdownAndBlockNote(t *testing.T) {
	pool := testPool(t)
	f := seed(t, pool, 2)
	ctx := context.Background()
	now := time.Now()

	_, err := pool.Exec(ctx, `UPDATE questions SET materia = 'Química' WHERE id = $1`, f.questIDs[0])
	require.NoError(t, err)

	a := newAttempt(f, now)
	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		if err := tx.InsertAttempt(ctx, a); err != nil {
			return err
		}
		return tx.UpsertAnswer(ctx, &model.AttemptAnswer{
			AttemptID: a.ID, QuestionID: f.questIDs[0], Position: 1, Choice: "B", Correct: true, UpdatedAt: now,
		})
	}))

	require.NoError(t, f.attempts.InTx(ctx, func(tx *AttemptTx) error {
		rows, err := tx.SubjectBreakdown(ctx, a.ID)
		require.NoError(t, err)
		require.ElementsMatch(t, []model.SubjectScore{
			{Materia: "Química", Total: 1, Answered: 1, Correct: 1},
			{Materia: model.NoSubject, Total: 1},
		}, rows)

		locked, err := tx.GetAttemptForUpdate(ctx, a.ID)
		require.NoError(t, err)
		reason := model.FinishSubmit
		correct, grade := 1, 5.0
		locked.Status = model.AttemptSubmitted
		locked.FinishReason = &reason
		locked.FinishedAt = &now
		locked.CorrectCount = &correct
		locked.Grade = &grade
		require.NoError(t, tx.FinishAttempt(ctx, locked))

		require.NoError(t, tx.SetBlock(ctx, a.ID, string(model.FinishStaffBlock), "cola", staffID, now))
		blocked, err := tx.ListBlocked(ctx)
		require.NoError(t, err)
		require.Len(t, blocked, 1)
		require.NotNil(t, blocked[0].Note)
		require.Equal(t, "cola", *blocked[0].Note)
		return nil
	}))
}

func TestIntegrationAuditLog(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	repo := NewAuditRepository(pool)

	id := int64(42)
	first := &model.AuditEntry{Actor: staffID, Perfil: model.RoleProfessor, IP: "10.0.0.1", Action: "questao.delete", EntityID: &id, Status: 200}
	require.NoError(t, repo.Insert(ctx, first))
	require.NotZero(t, first.ID)
	require.NoError(t, repo.Insert(ctx, &model.AuditEntry{
		Actor: "admin", Perfil: model.RoleAdmin, Action: "simulado.unlink_question", Status: 200,
		Meta: map[string]string{"question_id": "7"},
	}))

	all, total, err := repo.List(ctx, AuditFilter{}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Equal(t, "simulado.unlink_question", all[0].Action)
	require.Equal(t, map[string]string{"question_id": "7"}, all[0].Meta)

	mine, total, err := repo.List(ctx, AuditFilter{Actor: staffID, EntityID: 42}, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, first.ID, mine[0].ID)
}

func latestAttempt(t *testing.T, f *fixture) (*model.Attempt, error) {
	t.Helper()
	var out *model.Attempt
	err := f.attempts.InTx(context.Background(), func(tx *AttemptTx) error {
		a, err := tx.LatestAttempt(context.Background(), f.simulado.ID, "aluno01")
		out = a
		return err
	})
	return out, err
}
