package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
)

func currentEnrollment(ctx context.Context, db querier, matricula string) (*model.Enrollment, error) {
	e := &model.Enrollment{}
	err := db.QueryRow(ctx,
		`SELECT ano, matricula, turma FROM student_enrollments
		 WHERE matricula = $1
		 ORDER BY ano DESC
		 LIMIT 1`, matricula,
	).Scan(&e.Ano, &e.Matricula, &e.Turma)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// UserRepository handles user and enrollment data access.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByMatricula retrieves a user by their matricula.
func (r *UserRepository) GetByMatricula(ctx context.Context, matricula string) (*model.User, error) {
	u := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT matricula, nome, perfil, senha_hash, created_at
		 FROM users WHERE matricula = $1`, matricula,
	).Scan(&u.Matricula, &u.Nome, &u.Perfil, &u.SenhaHash, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

// Create inserts a new user. A taken matricula returns ErrConflict.
func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (matricula, nome, perfil, senha_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		u.Matricula, u.Nome, u.Perfil, u.SenhaHash,
	).Scan(&u.CreatedAt)
	return mapErr(err)
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, matricula, hash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET senha_hash = $1 WHERE matricula = $2`, hash, matricula,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CurrentEnrollment returns the student's turma for the most recent year.
func (r *UserRepository) CurrentEnrollment(ctx context.Context, matricula string) (*model.Enrollment, error) {
	return currentEnrollment(ctx, r.pool, matricula)
}

// Enroll assigns a student to a turma for a year, replacing a previous assignment.
func (r *UserRepository) Enroll(ctx context.Context, e model.Enrollment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_enrollments (ano, matricula, turma)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (ano, matricula) DO UPDATE SET turma = EXCLUDED.turma`,
		e.Ano, e.Matricula, e.Turma,
	)
	return err
}
