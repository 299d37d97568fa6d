package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
)

// serviceErrors maps domain sentinels to their HTTP status and API code.
var serviceErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	// Scheduling
	{service.ErrSimuladoBlocked, http.StatusForbidden, response.ErrSimuladoBlocked},
	{service.ErrAlreadyCompleted, http.StatusConflict, response.ErrAlreadyCompleted},
	{service.ErrNoEnrollment, http.StatusForbidden, response.ErrNoEnrollment},
	{service.ErrSimuladoNotFound, http.StatusNotFound, response.ErrSimuladoNotFound},
	{service.ErrOutsideWindow, http.StatusForbidden, response.ErrOutsideWindow},
	{service.ErrNoQuestionsConfigured, http.StatusUnprocessableEntity, response.ErrNoQuestions},

	// Attempt
	{service.ErrAttemptNotFound, http.StatusNotFound, response.ErrAttemptNotFound},
	{service.ErrAttemptFinished, http.StatusConflict, response.ErrAttemptFinished},
	{service.ErrInvalidPosition, http.StatusBadRequest, response.ErrInvalidPosition},
	{service.ErrInvalidAnswer, http.StatusBadRequest, response.ErrInvalidAnswer},
	{service.ErrNotBlocked, http.StatusConflict, response.ErrNotBlocked},
	{service.ErrAttemptInProgress, http.StatusConflict, response.ErrAttemptInProgress},

	// Simulado administration
	{service.ErrQuestionLimit, http.StatusConflict, response.ErrQuestionLimit},
	{service.ErrQuestionLinked, http.StatusConflict, response.ErrQuestionLinked},
	{service.ErrQuestionNotLinked, http.StatusNotFound, response.ErrQuestionNotLinked},
	{service.ErrInvalidWindow, http.StatusBadRequest, response.ErrInvalidWindow},
	{service.ErrSameTurma, http.StatusBadRequest, response.ErrSameTurma},
	{service.ErrDuplicateSimulado, http.StatusConflict, response.ErrDuplicateSimulado},
	{service.ErrLimitBelowLinked, http.StatusConflict, response.ErrLimitBelowLinked},
	{service.ErrQuestionInUse, http.StatusConflict, response.ErrQuestionInUse},

	// Auth
	{service.ErrInvalidCredentials, http.StatusUnauthorized, response.ErrInvalidCredentials},
	{service.ErrSessionReplaced, http.StatusUnauthorized, response.ErrSessionReplaced},

	// Generic store errors come last so specific sentinels win.
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrConflict, http.StatusConflict, response.ErrConflict},
}

// classify resolves err to a status, code and optional typed details.
// Unknown errors are internal.
func classify(err error) (int, response.ErrCode, any) {
	var incomplete *service.IncompleteError
	if errors.As(err, &incomplete) {
		return http.StatusUnprocessableEntity, response.ErrIncomplete, response.IncompleteDetails{
			Missing:  incomplete.Missing,
			Answered: incomplete.Answered,
			Total:    incomplete.Total,
		}
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return m.status, m.code, nil
		}
	}
	return http.StatusInternalServerError, response.ErrInternal, nil
}

// failService writes the envelope for a service error, logging the ones
// that are not part of the API contract.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	status, code, details := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	if details != nil {
		response.FailWithDetails(c, status, code, details)
		return
	}
	response.Fail(c, status, code)
}

// paramID parses a positive integer path parameter.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
