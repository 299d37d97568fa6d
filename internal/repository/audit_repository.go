package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/simulado-backend/internal/model"
)

// AuditFilter narrows List. Zero values match everything.
type AuditFilter struct {
	Actor    string
	Action   string
	EntityID int64
}

// AuditRepository persists the staff action trail.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Insert appends an entry and fills ID and At.
func (r *AuditRepository) Insert(ctx context.Context, e *model.AuditEntry) error {
	meta := e.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO audit_log (actor, perfil, ip, action, entity_id, status, request_id, meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, at`,
		e.Actor, e.Perfil, e.IP, e.Action, e.EntityID, e.Status, e.RequestID, meta,
	).Scan(&e.ID, &e.At)
}

// List returns entries newest first with the total matching f.
func (r *AuditRepository) List(ctx context.Context, f AuditFilter, limit, offset int) ([]model.AuditEntry, int, error) {
	where := ` WHERE TRUE`
	var args []any
	if f.Actor != "" {
		args = append(args, f.Actor)
		where += fmt.Sprintf(" AND actor = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.EntityID > 0 {
		args = append(args, f.EntityID)
		where += fmt.Sprintf(" AND entity_id = $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.pool.Query(ctx,
		`SELECT id, at, actor, perfil, ip, action, entity_id, status, request_id, meta
		 FROM audit_log`+where+
			fmt.Sprintf(` ORDER BY at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.At, &e.Actor, &e.Perfil, &e.IP, &e.Action,
			&e.EntityID, &e.Status, &e.RequestID, &e.Meta); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
