package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
)

// AuditHandler serves the staff action trail.
type AuditHandler struct {
	audit *service.AuditService
	log   zerolog.Logger
}

// NewAuditHandler creates a new AuditHandler.
func NewAuditHandler(audit *service.AuditService, log zerolog.Logger) *AuditHandler {
	return &AuditHandler{
		audit: audit,
		log:   log.With().Str("component", "audit_handler").Logger(),
	}
}

// ListAudit godoc
// GET /api/v1/admin/auditoria?matricula=&acao=&entidade_id=&page=&per_page=
func (h *AuditHandler) ListAudit(c *gin.Context) {
	f := repository.AuditFilter{
		Actor:  c.Query("matricula"),
		Action: c.Query("acao"),
	}
	if raw := c.Query("entidade_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"entidade_id": "entidade_id deve ser um id válido"})
			return
		}
		f.EntityID = id
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))

	entries, pagination, err := h.audit.List(c.Request.Context(), f, page, perPage)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"registros": entries}, pagination)
}
