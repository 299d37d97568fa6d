package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
)

const questionColumns = `q.id, q.ano, q.enunciado, q.alternativa_a, q.alternativa_b, q.alternativa_c,
	q.alternativa_d, q.alternativa_e, q.correta, q.materia, q.imagem_url,
	q.criada_por, q.criada_em, q.atualizada_em`

func questionDest(q *model.Question) []any {
	return []any{&q.ID, &q.Ano, &q.Enunciado, &q.AlternativaA, &q.AlternativaB, &q.AlternativaC,
		&q.AlternativaD, &q.AlternativaE, &q.Correta, &q.Materia, &q.ImagemURL,
		&q.CriadaPor, &q.CriadaEm, &q.AtualizadaEm}
}

func getQuestion(ctx context.Context, db querier, id int64) (*model.Question, error) {
	q := &model.Question{}
	err := db.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions q WHERE q.id = $1`, id).
		Scan(questionDest(q)...)
	if err != nil {
		return nil, mapErr(err)
	}
	return q, nil
}

func insertQuestion(ctx context.Context, db querier, q *model.Question) error {
	return db.QueryRow(ctx,
		`INSERT INTO questions (ano, enunciado, alternativa_a, alternativa_b, alternativa_c,
		                        alternativa_d, alternativa_e, correta, materia, imagem_url, criada_por)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, criada_em, atualizada_em`,
		q.Ano, q.Enunciado, q.AlternativaA, q.AlternativaB, q.AlternativaC,
		q.AlternativaD, q.AlternativaE, q.Correta, q.Materia, q.ImagemURL, q.CriadaPor,
	).Scan(&q.ID, &q.CriadaEm, &q.AtualizadaEm)
}

// QuestionRepository handles question bank data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a question including its answer key.
func (r *QuestionRepository) GetByID(ctx context.Context, id int64) (*model.Question, error) {
	return getQuestion(ctx, r.pool, id)
}

// Create inserts a new bank question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return insertQuestion(ctx, r.pool, q)
}

// Update replaces a question's content and key. Answers already written keep
// the correctness they were graded with.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE questions
		 SET ano = $1, enunciado = $2, alternativa_a = $3, alternativa_b = $4, alternativa_c = $5,
		     alternativa_d = $6, alternativa_e = $7, correta = $8, materia = $9, imagem_url = $10,
		     atualizada_em = NOW()
		 WHERE id = $11
		 RETURNING criada_por, criada_em, atualizada_em`,
		q.Ano, q.Enunciado, q.AlternativaA, q.AlternativaB, q.AlternativaC,
		q.AlternativaD, q.AlternativaE, q.Correta, q.Materia, q.ImagemURL, q.ID,
	).Scan(&q.CriadaPor, &q.CriadaEm, &q.AtualizadaEm)
	return mapErr(err)
}

// QuestionFilter narrows List. AllAnos ignores Ano; Search matches the
// statement or the materia case-insensitively; ExcludeSimulado hides questions
// already linked to that simulado.
type QuestionFilter struct {
	Ano             int
	AllAnos         bool
	Materia         string
	Search          string
	ExcludeSimulado int64
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (f QuestionFilter) where() (string, []any) {
	where := ` WHERE TRUE`
	var args []any
	if !f.AllAnos {
		args = append(args, f.Ano)
		where += fmt.Sprintf(" AND q.ano = $%d", len(args))
	}
	if f.Materia != "" {
		args = append(args, f.Materia)
		where += fmt.Sprintf(" AND q.materia = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+likeEscaper.Replace(f.Search)+"%")
		where += fmt.Sprintf(" AND (q.enunciado ILIKE $%[1]d OR q.materia ILIKE $%[1]d)", len(args))
	}
	if f.ExcludeSimulado > 0 {
		args = append(args, f.ExcludeSimulado)
		where += fmt.Sprintf(` AND NOT EXISTS (
			SELECT 1 FROM simulado_questions sq WHERE sq.simulado_id = $%d AND sq.question_id = q.id)`, len(args))
	}
	return where, args
}

// List retrieves bank questions matching f, newest first, with the total.
func (r *QuestionRepository) List(ctx context.Context, f QuestionFilter, limit, offset int) ([]model.Question, int, error) {
	where, args := f.where()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions q`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions q`+where+
			fmt.Sprintf(` ORDER BY q.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(questionDest(&q)...); err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// Delete removes a bank question. It returns ErrReferenced while the question
// is linked to a simulado, frozen into an attempt order or answered.
func (r *QuestionRepository) Delete(ctx context.Context, id int64) error {
	return pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var used bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM simulado_questions WHERE question_id = q.id)
			        OR EXISTS (SELECT 1 FROM attempts WHERE q.id = ANY(question_order))
			        OR EXISTS (SELECT 1 FROM attempt_answers WHERE question_id = q.id)
			 FROM questions q WHERE q.id = $1 FOR UPDATE`, id,
		).Scan(&used)
		if err != nil {
			return mapErr(err)
		}
		if used {
			return ErrReferenced
		}
		_, err = tx.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
		return mapErr(err)
	})
}
