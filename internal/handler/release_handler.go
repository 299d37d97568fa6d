package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
	"github.com/stemsi/simulado-backend/internal/validator"
)

// StaffAttempts is the staff side of the attempt lifecycle.
type StaffAttempts interface {
	ListBlocked(ctx context.Context) ([]model.BlockedAttempt, error)
	Release(ctx context.Context, staffID string, attemptID int64) (*service.ReleaseOutcome, error)
	Block(ctx context.Context, staffID string, attemptID int64, note string) (*model.AttemptResult, error)
}

// ReleaseHandler handles blocked-attempt endpoints for staff.
type ReleaseHandler struct {
	attempts StaffAttempts
	log      zerolog.Logger
}

// NewReleaseHandler creates a new ReleaseHandler.
func NewReleaseHandler(attempts StaffAttempts, log zerolog.Logger) *ReleaseHandler {
	return &ReleaseHandler{
		attempts: attempts,
		log:      log.With().Str("component", "release_handler").Logger(),
	}
}

// ListBlocked godoc
// GET /api/v1/admin/liberacoes
func (h *ReleaseHandler) ListBlocked(c *gin.Context) {
	rows, err := h.attempts.ListBlocked(c.Request.Context())
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"bloqueados": rows})
}

// Release godoc
// POST /api/v1/admin/liberacoes/:id/liberar
// Clears every active block of the attempt's student on that simulado.
func (h *ReleaseHandler) Release(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	out, err := h.attempts.Release(c.Request.Context(), claims.Matricula, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// Block godoc
// POST /api/v1/admin/tentativas/:id/bloquear
// Closes an in-progress attempt and blocks the student on that simulado.
// The body {"observacao": "..."} is optional.
func (h *ReleaseHandler) Block(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.BlockRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	result, err := h.attempts.Block(c.Request.Context(), claims.Matricula, attemptID, req.Note)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}
