package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
)

const simuladoColumns = `s.id, s.ano, s.titulo, s.unidade, s.turma, s.curso, s.inicio_em, s.fim_em,
	s.duracao_min, s.num_questoes, s.valor_total, s.criado_por, s.criado_em, s.atualizado_em,
	(SELECT COUNT(*) FROM simulado_questions sq WHERE sq.simulado_id = s.id)`

// serializableRetries bounds retries of link transactions aborted by 40001.
const serializableRetries = 3

func scanSimulado(row pgx.Row) (*model.Simulado, error) {
	s := &model.Simulado{}
	err := row.Scan(&s.ID, &s.Ano, &s.Titulo, &s.Unidade, &s.Turma, &s.Curso, &s.InicioEm, &s.FimEm,
		&s.DuracaoMin, &s.NumQuestoes, &s.ValorTotal, &s.CriadoPor, &s.CriadoEm, &s.AtualizadoEm,
		&s.Vinculadas)
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func collectSimulados(rows pgx.Rows) ([]model.Simulado, error) {
	defer rows.Close()

	var out []model.Simulado
	for rows.Next() {
		s, err := scanSimulado(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func getSimulado(ctx context.Context, q querier, id int64) (*model.Simulado, error) {
	return scanSimulado(q.QueryRow(ctx, `SELECT `+simuladoColumns+` FROM simulados s WHERE s.id = $1`, id))
}

// SimuladoFilter narrows List. Zero values match everything.
type SimuladoFilter struct {
	Ano   int
	Turma string
}

// SimuladoRepository handles simulado data access.
type SimuladoRepository struct {
	pool *pgxpool.Pool
}

// NewSimuladoRepository creates a new SimuladoRepository.
func NewSimuladoRepository(pool *pgxpool.Pool) *SimuladoRepository {
	return &SimuladoRepository{pool: pool}
}

// GetByID retrieves a simulado with its linked question count.
func (r *SimuladoRepository) GetByID(ctx context.Context, id int64) (*model.Simulado, error) {
	return getSimulado(ctx, r.pool, id)
}

// List retrieves simulados newest window first.
func (r *SimuladoRepository) List(ctx context.Context, f SimuladoFilter) ([]model.Simulado, error) {
	query := `SELECT ` + simuladoColumns + ` FROM simulados s WHERE TRUE`
	var args []any
	if f.Ano > 0 {
		args = append(args, f.Ano)
		query += fmt.Sprintf(" AND s.ano = $%d", len(args))
	}
	if f.Turma != "" {
		args = append(args, f.Turma)
		query += fmt.Sprintf(" AND s.turma = $%d", len(args))
	}
	query += ` ORDER BY s.inicio_em DESC, s.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectSimulados(rows)
}

// Create inserts a simulado and its original application window.
func (r *SimuladoRepository) Create(ctx context.Context, s *model.Simulado) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO simulados (ano, titulo, unidade, turma, curso, inicio_em, fim_em,
			                        duracao_min, num_questoes, valor_total, criado_por)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING id, criado_em, atualizado_em`,
			s.Ano, s.Titulo, s.Unidade, s.Turma, s.Curso, s.InicioEm, s.FimEm,
			s.DuracaoMin, s.NumQuestoes, s.ValorTotal, s.CriadoPor,
		).Scan(&s.ID, &s.CriadoEm, &s.AtualizadoEm)
		if err != nil {
			return mapErr(err)
		}
		return insertApplication(ctx, tx, s.ID, s.InicioEm, s.FimEm, model.ApplicationOriginal, s.CriadoPor)
	})
}

// Update replaces the editable columns of a simulado. The row is locked the
// same way linkQuestion locks it, so num_questoes can never drop below the
// linked count. It returns ErrLimitReached when it would.
func (r *SimuladoRepository) Update(ctx context.Context, s *model.Simulado) error {
	return r.serializable(ctx, func(tx pgx.Tx) error {
		linked, err := lockLinkCount(ctx, tx, s.ID)
		if err != nil {
			return err
		}
		if s.NumQuestoes < linked {
			return ErrLimitReached
		}
		s.Vinculadas = linked

		err = tx.QueryRow(ctx,
			`UPDATE simulados
			 SET titulo = $1, unidade = $2, curso = $3, inicio_em = $4, fim_em = $5,
			     duracao_min = $6, num_questoes = $7, valor_total = $8, atualizado_em = NOW()
			 WHERE id = $9
			 RETURNING atualizado_em`,
			s.Titulo, s.Unidade, s.Curso, s.InicioEm, s.FimEm,
			s.DuracaoMin, s.NumQuestoes, s.ValorTotal, s.ID,
		).Scan(&s.AtualizadoEm)
		return mapErr(err)
	})
}

// Delete removes a simulado; links and attempts cascade.
func (r *SimuladoRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM simulados WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reapply moves the simulado to a new window and records the re-application.
func (r *SimuladoRepository) Reapply(ctx context.Context, id int64, inicio, fim time.Time, by string) (*model.Simulado, error) {
	var out *model.Simulado
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE simulados SET inicio_em = $1, fim_em = $2, atualizado_em = NOW() WHERE id = $3`,
			inicio, fim, id,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if err := insertApplication(ctx, tx, id, inicio, fim, model.ApplicationReapplied, &by); err != nil {
			return err
		}
		out, err = getSimulado(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Replicate copies a simulado and its question links to another turma.
func (r *SimuladoRepository) Replicate(ctx context.Context, id int64, turma, by string) (*model.Simulado, error) {
	var out *model.Simulado
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var newID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO simulados (ano, titulo, unidade, turma, curso, inicio_em, fim_em,
			                        duracao_min, num_questoes, valor_total, criado_por)
			 SELECT ano, titulo, unidade, $2, curso, inicio_em, fim_em,
			        duracao_min, num_questoes, valor_total, $3
			 FROM simulados WHERE id = $1
			 RETURNING id`, id, turma, by,
		).Scan(&newID)
		if err != nil {
			return mapErr(err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO simulado_questions (simulado_id, question_id, ordem, adicionada_por)
			 SELECT $1, question_id, ordem, $3
			 FROM simulado_questions WHERE simulado_id = $2`, newID, id, by,
		); err != nil {
			return err
		}

		out, err = getSimulado(ctx, tx, newID)
		if err != nil {
			return err
		}
		return insertApplication(ctx, tx, newID, out.InicioEm, out.FimEm, model.ApplicationOriginal, &by)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertApplication(ctx context.Context, q querier, simuladoID int64, inicio, fim time.Time, kind model.ApplicationKind, by *string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO simulado_applications (simulado_id, inicio_em, fim_em, tipo, criado_por)
		 VALUES ($1, $2, $3, $4, $5)`,
		simuladoID, inicio, fim, kind, by,
	)
	return err
}

// Applications lists the windows a simulado was offered in, oldest first.
func (r *SimuladoRepository) Applications(ctx context.Context, id int64) ([]model.Application, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, simulado_id, inicio_em, fim_em, tipo, criado_por, criado_em
		 FROM simulado_applications
		 WHERE simulado_id = $1
		 ORDER BY criado_em, id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Application
	for rows.Next() {
		var a model.Application
		if err := rows.Scan(&a.ID, &a.SimuladoID, &a.InicioEm, &a.FimEm, &a.Tipo, &a.CriadoPor, &a.CriadoEm); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LinkedQuestions lists the questions of a simulado in configured order.
func (r *SimuladoRepository) LinkedQuestions(ctx context.Context, id int64) ([]model.LinkedQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`, sq.ordem
		 FROM simulado_questions sq
		 JOIN questions q ON q.id = sq.question_id
		 WHERE sq.simulado_id = $1
		 ORDER BY sq.ordem, q.id`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LinkedQuestion
	for rows.Next() {
		var lq model.LinkedQuestion
		if err := rows.Scan(append(questionDest(&lq.Question), &lq.Ordem)...); err != nil {
			return nil, err
		}
		out = append(out, lq)
	}
	return out, rows.Err()
}

// AddQuestion links a bank question. The simulado row is locked while the
// limit is checked, so concurrent links never exceed num_questoes.
func (r *SimuladoRepository) AddQuestion(ctx context.Context, simuladoID, questionID int64, by string) error {
	return r.serializable(ctx, func(tx pgx.Tx) error {
		return linkQuestion(ctx, tx, simuladoID, questionID, by)
	})
}

// CreateQuestionInSimulado inserts a bank question and links it in one transaction.
func (r *SimuladoRepository) CreateQuestionInSimulado(ctx context.Context, simuladoID int64, q *model.Question, by string) error {
	return r.serializable(ctx, func(tx pgx.Tx) error {
		if err := insertQuestion(ctx, tx, q); err != nil {
			return err
		}
		return linkQuestion(ctx, tx, simuladoID, q.ID, by)
	})
}

// lockLinkCount row-locks the simulado and counts its linked questions.
func lockLinkCount(ctx context.Context, tx pgx.Tx, simuladoID int64) (int, error) {
	var linked int
	if _, err := lockNumQuestoes(ctx, tx, simuladoID); err != nil {
		return 0, err
	}
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM simulado_questions WHERE simulado_id = $1`, simuladoID,
	).Scan(&linked)
	return linked, err
}

func lockNumQuestoes(ctx context.Context, tx pgx.Tx, simuladoID int64) (int, error) {
	var limit int
	err := tx.QueryRow(ctx,
		`SELECT num_questoes FROM simulados WHERE id = $1 FOR UPDATE`, simuladoID,
	).Scan(&limit)
	return limit, mapErr(err)
}

func linkQuestion(ctx context.Context, tx pgx.Tx, simuladoID, questionID int64, by string) error {
	limit, err := lockNumQuestoes(ctx, tx, simuladoID)
	if err != nil {
		return err
	}
	var linked int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM simulado_questions WHERE simulado_id = $1`, simuladoID,
	).Scan(&linked); err != nil {
		return err
	}
	if linked >= limit {
		return ErrLimitReached
	}
	if _, err := getQuestion(ctx, tx, questionID); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO simulado_questions (simulado_id, question_id, ordem, adicionada_por)
		 VALUES ($1, $2, $3, $4)`,
		simuladoID, questionID, linked+1, by,
	)
	return mapErr(err)
}

// RemoveQuestion unlinks a question and closes the gap in ordem.
func (r *SimuladoRepository) RemoveQuestion(ctx context.Context, simuladoID, questionID int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var ordem int
		err := tx.QueryRow(ctx,
			`DELETE FROM simulado_questions
			 WHERE simulado_id = $1 AND question_id = $2
			 RETURNING ordem`, simuladoID, questionID,
		).Scan(&ordem)
		if err != nil {
			return mapErr(err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE simulado_questions SET ordem = ordem - 1
			 WHERE simulado_id = $1 AND ordem > $2`, simuladoID, ordem,
		)
		return err
	})
}

func (r *SimuladoRepository) serializable(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for i := 0; i < serializableRetries; i++ {
		err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("serializable retries exhausted: %w", err)
}
