package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/observability"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/response"
)

// AuditStore is the staff action trail persistence.
type AuditStore interface {
	Insert(ctx context.Context, e *model.AuditEntry) error
	List(ctx context.Context, f repository.AuditFilter, limit, offset int) ([]model.AuditEntry, int, error)
}

const maxAuditPerPage = 200

// ErrAuditIncomplete rejects entries without an actor or action.
var ErrAuditIncomplete = errors.New("audit entry needs actor and action")

// AuditService records and lists staff actions.
type AuditService struct {
	store AuditStore
	log   zerolog.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(store AuditStore, log zerolog.Logger) *AuditService {
	return &AuditService{
		store: store,
		log:   log.With().Str("component", "audit_service").Logger(),
	}
}

// Record appends e to the trail.
func (s *AuditService) Record(ctx context.Context, e model.AuditEntry) error {
	if e.Actor == "" || e.Action == "" {
		return ErrAuditIncomplete
	}
	if err := s.store.Insert(ctx, &e); err != nil {
		return err
	}
	observability.StaffActions().WithLabelValues(e.Action).Inc()
	s.log.Debug().Str("action", e.Action).Str("actor", e.Actor).Msg("Staff action recorded")
	return nil
}

// List pages through the trail, newest first.
func (s *AuditService) List(ctx context.Context, f repository.AuditFilter, page, perPage int) ([]model.AuditEntry, *response.Pagination, error) {
	pagination, offset := response.NewPagination(page, perPage, maxAuditPerPage)
	entries, total, err := s.store.List(ctx, f, pagination.PerPage, offset)
	if err != nil {
		return nil, nil, err
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	pagination.SetTotal(total)
	return entries, pagination, nil
}
