package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
	"github.com/stemsi/simulado-backend/internal/validator"
)

// QuestionHandler handles question bank endpoints.
type QuestionHandler struct {
	questions *service.QuestionService
	log       zerolog.Logger
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questions *service.QuestionService, log zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		questions: questions,
		log:       log.With().Str("component", "question_handler").Logger(),
	}
}

// ListQuestions godoc
// GET /api/v1/admin/questoes?ano=&todos_anos=&materia=&busca=&excluir_simulado=&page=&per_page=
// ano is required unless todos_anos=1. excluir_simulado hides questions
// already linked to that simulado, for the link picker.
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	f := repository.QuestionFilter{
		AllAnos: c.Query("todos_anos") == "1",
		Materia: c.Query("materia"),
		Search:  c.Query("busca"),
	}
	if !f.AllAnos {
		ano, err := strconv.Atoi(c.Query("ano"))
		if err != nil || ano <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"ano": "ano é obrigatório"})
			return
		}
		f.Ano = ano
	}
	if raw := c.Query("excluir_simulado"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"excluir_simulado": "excluir_simulado deve ser um id válido"})
			return
		}
		f.ExcludeSimulado = id
	}
	if len(f.Search) > 120 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"busca": "busca deve ter no máximo 120 caracteres"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	questions, pagination, err := h.questions.List(c.Request.Context(), f, page, perPage)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questoes": questions}, pagination)
}

// GetQuestion godoc
// GET /api/v1/admin/questoes/:id
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	q, err := h.questions.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questao": q})
}

// CreateQuestion godoc
// POST /api/v1/admin/questoes
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questions.Create(c.Request.Context(), req, claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"questao": q})
}

// UpdateQuestion godoc
// PUT /api/v1/admin/questoes/:id
// Replaces the question. A new key only affects answers recorded afterwards.
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.QuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	q, err := h.questions.Update(c.Request.Context(), id, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questao": q})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/questoes/:id
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.questions.Delete(c.Request.Context(), id); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"id": id})
}
