package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
)

type auditStoreStub struct {
	entries    []model.AuditEntry
	lastFilter repository.AuditFilter
	lastLimit  int
	lastOffset int
}

func (s *auditStoreStub) Insert(ctx context.Context, e *model.AuditEntry) error {
	e.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, *e)
	return nil
}

func (s *auditStoreStub) List(ctx context.Context, f repository.AuditFilter, limit, offset int) ([]model.AuditEntry, int, error) {
	s.lastFilter, s.lastLimit, s.lastOffset = f, limit, offset
	return s.entries, len(s.entries), nil
}

func TestAuditRecordAndList(t *testing.T) {
	store := &auditStoreStub{}
	svc := NewAuditService(store, testLogger())
	ctx := context.Background()

	require.ErrorIs(t, svc.Record(ctx, model.AuditEntry{Action: model.AuditQuestionDelete}), ErrAuditIncomplete)
	require.ErrorIs(t, svc.Record(ctx, model.AuditEntry{Actor: staff}), ErrAuditIncomplete)

	id := int64(7)
	require.NoError(t, svc.Record(ctx, model.AuditEntry{Actor: staff, Perfil: model.RoleProfessor, Action: model.AuditQuestionDelete, EntityID: &id}))
	require.Len(t, store.entries, 1)

	entries, page, err := svc.List(ctx, repository.AuditFilter{Action: model.AuditQuestionDelete}, 2, 500)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, maxAuditPerPage, store.lastLimit)
	require.Equal(t, maxAuditPerPage, store.lastOffset)
	require.Equal(t, 1, page.TotalItems)
	require.Equal(t, model.AuditQuestionDelete, store.lastFilter.Action)
}
