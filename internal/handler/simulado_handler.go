package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
	"github.com/stemsi/simulado-backend/internal/validator"
)

// SimuladoHandler handles simulado administration endpoints.
type SimuladoHandler struct {
	simulados *service.SimuladoService
	log       zerolog.Logger
}

// NewSimuladoHandler creates a new SimuladoHandler.
func NewSimuladoHandler(simulados *service.SimuladoService, log zerolog.Logger) *SimuladoHandler {
	return &SimuladoHandler{
		simulados: simulados,
		log:       log.With().Str("component", "simulado_handler").Logger(),
	}
}

// ListSimulados godoc
// GET /api/v1/admin/simulados?ano=&turma=
func (h *SimuladoHandler) ListSimulados(c *gin.Context) {
	ano, _ := strconv.Atoi(c.Query("ano"))

	sims, err := h.simulados.List(c.Request.Context(), ano, c.Query("turma"))
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"simulados": sims})
}

// GetSimulado godoc
// GET /api/v1/admin/simulados/:id
// Returns the simulado with its linked questions and application history.
func (h *SimuladoHandler) GetSimulado(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	detail, err := h.simulados.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, detail)
}

// CreateSimulado godoc
// POST /api/v1/admin/simulados
func (h *SimuladoHandler) CreateSimulado(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateSimuladoRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sim, err := h.simulados.Create(c.Request.Context(), req, claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"simulado": sim})
}

// UpdateSimulado godoc
// PATCH /api/v1/admin/simulados/:id
func (h *SimuladoHandler) UpdateSimulado(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateSimuladoRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sim, err := h.simulados.Update(c.Request.Context(), id, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"simulado": sim})
}

// DeleteSimulado godoc
// DELETE /api/v1/admin/simulados/:id
// Removes the simulado with its links and attempts.
func (h *SimuladoHandler) DeleteSimulado(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.simulados.Delete(c.Request.Context(), id); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ReapplySimulado godoc
// POST /api/v1/admin/simulados/:id/reaplicar
func (h *SimuladoHandler) ReapplySimulado(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.ReapplyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sim, err := h.simulados.Reapply(c.Request.Context(), id, req, claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"simulado": sim})
}

// ReplicateSimulado godoc
// POST /api/v1/admin/simulados/:id/replicar
// Copies the simulado and its question links to another turma.
func (h *SimuladoHandler) ReplicateSimulado(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.ReplicateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sim, err := h.simulados.Replicate(c.Request.Context(), id, req, claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"simulado": sim})
}

// LinkQuestion godoc
// POST /api/v1/admin/simulados/:id/questoes
// Links an existing bank question, respecting num_questoes.
func (h *SimuladoHandler) LinkQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.LinkQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.simulados.AddQuestion(c.Request.Context(), id, req.QuestionID, claims.Matricula); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"simulado_id": id, "questao_id": req.QuestionID})
}

// CreateLinkedQuestion godoc
// POST /api/v1/admin/simulados/:id/questoes/nova
// Creates a bank question and links it in one step.
func (h *SimuladoHandler) CreateLinkedQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.simulados.CreateQuestion(c.Request.Context(), id, req, claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"questao": q})
}

// UnlinkQuestion godoc
// DELETE /api/v1/admin/simulados/:id/questoes/:question_id
func (h *SimuladoHandler) UnlinkQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	questionID, ok := paramID(c, "question_id")
	if !ok {
		return
	}

	if err := h.simulados.RemoveQuestion(c.Request.Context(), id, questionID); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
