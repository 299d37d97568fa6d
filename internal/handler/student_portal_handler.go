package handler

import (
	"context"
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

// StudentAttempts is the student side of the attempt lifecycle.
type StudentAttempts interface {
	Lobby(ctx context.Context, studentID string) (*service.Lobby, error)
	Start(ctx context.Context, studentID string, simuladoID int64) (*service.StartOutcome, error)
	Summary(ctx context.Context, studentID string, attemptID int64) (*service.AttemptSummary, error)
	Question(ctx context.Context, studentID string, attemptID int64, position int) (*service.QuestionView, error)
	RecordAnswer(ctx context.Context, studentID string, attemptID int64, req model.AnswerRequest) (*service.AnswerOutcome, error)
	ReportViolation(ctx context.Context, studentID string, attemptID int64, req model.ViolationRequest) (*service.ViolationOutcome, error)
	Submit(ctx context.Context, studentID string, attemptID int64) (*model.AttemptResult, error)
	Results(ctx context.Context, studentID string) ([]model.StudentResult, error)
	SubjectBreakdown(ctx context.Context, studentID string, attemptID int64) ([]model.SubjectScore, error)
}

// StudentPortalHandler handles student-facing endpoints (lobby, attempt taking, results).
type StudentPortalHandler struct {
	attempts StudentAttempts
	log      zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(attempts StudentAttempts, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		attempts: attempts,
		log:      log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// GetLobby godoc
// GET /api/v1/aluno/simulados
// Lists the simulados of the student's current turma and the action each allows.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.attempts.Lobby(c.Request.Context(), claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, lobby)
}

// StartAttempt godoc
// POST /api/v1/aluno/simulados/:id/iniciar
// Creates the attempt or continues the one in progress. When the open attempt
// is already past its deadline, the finalized result comes back instead.
func (h *StudentPortalHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	simuladoID, ok := paramID(c, "id")
	if !ok {
		return
	}

	out, err := h.attempts.Start(c.Request.Context(), claims.Matricula, simuladoID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	status := http.StatusOK
	if out.Finalized == nil && !out.Resumed {
		status = http.StatusCreated
	}
	response.Success(c, status, out)
}

// GetAttempt godoc
// GET /api/v1/aluno/tentativas/:id
func (h *StudentPortalHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	summary, err := h.attempts.Summary(c.Request.Context(), claims.Matricula, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, summary)
}

// GetQuestion godoc
// GET /api/v1/aluno/tentativas/:id/questoes/:n
// Serves position n (1-based) of the frozen order, without the answer key.
func (h *StudentPortalHandler) GetQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}
	position, err := strconv.Atoi(c.Param("n"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPosition)
		return
	}

	view, err := h.attempts.Question(c.Request.Context(), claims.Matricula, attemptID, position)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// RecordAnswer godoc
// POST /api/v1/aluno/tentativas/:id/responder
func (h *StudentPortalHandler) RecordAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.attempts.RecordAnswer(c.Request.Context(), claims.Matricula, attemptID, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// ReportViolation godoc
// POST /api/v1/aluno/tentativas/:id/aviso
// Counts a proctoring signal. The call that reaches the limit closes the
// attempt and carries the result.
func (h *StudentPortalHandler) ReportViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.ViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.attempts.ReportViolation(c.Request.Context(), claims.Matricula, attemptID, req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// Submit godoc
// POST /api/v1/aluno/tentativas/:id/enviar
// Finalizes the attempt. Repeated calls return the stored result.
func (h *StudentPortalHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	result, err := h.attempts.Submit(c.Request.Context(), claims.Matricula, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GetSubjectBreakdown godoc
// GET /api/v1/aluno/tentativas/:id/materias
func (h *StudentPortalHandler) GetSubjectBreakdown(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	rows, err := h.attempts.SubjectBreakdown(c.Request.Context(), claims.Matricula, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"materias": rows})
}

// GetResults godoc
// GET /api/v1/aluno/resultados
func (h *StudentPortalHandler) GetResults(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	results, err := h.attempts.Results(c.Request.Context(), claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"resultados": results})
}
