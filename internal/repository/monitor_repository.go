package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
)

// MonitorRepository provides data access for the live simulado monitor.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// Snapshot returns the latest attempt of every student who started the simulado.
func (r *MonitorRepository) Snapshot(ctx context.Context, simuladoID int64) ([]model.MonitorRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (a.student_id)
		        a.id, a.student_id, u.nome, a.status,
		        (SELECT COUNT(*) FROM attempt_answers aa WHERE aa.attempt_id = a.id),
		        cardinality(a.question_order), a.violations, a.blocked, a.ends_at
		 FROM attempts a
		 JOIN users u ON u.matricula = a.student_id
		 WHERE a.simulado_id = $1
		 ORDER BY a.student_id, a.id DESC`, simuladoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MonitorRow
	for rows.Next() {
		var m model.MonitorRow
		if err := rows.Scan(&m.AttemptID, &m.StudentID, &m.Nome, &m.Status,
			&m.Answered, &m.Total, &m.Violations, &m.Blocked, &m.EndsAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ViolationRow is one audited proctoring signal.
type ViolationRow struct {
	AttemptID  int64
	Kind       string
	Detail     []byte
	RecordedAt time.Time
}

// ViolationRepository persists the proctoring audit trail.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// CopyMany bulk-inserts rows with the COPY protocol.
func (r *ViolationRepository) CopyMany(ctx context.Context, batch []ViolationRow) error {
	rows := make([][]any, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []any{v.AttemptID, v.Kind, string(v.Detail), v.RecordedAt})
	}
	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"attempt_id", "kind", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single row; used when a batch is rejected as a whole.
func (r *ViolationRepository) Insert(ctx context.Context, v ViolationRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_violations (attempt_id, kind, detail, recorded_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		v.AttemptID, v.Kind, string(v.Detail), v.RecordedAt,
	)
	return err
}
