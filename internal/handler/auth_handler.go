package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
	"github.com/stemsi/simulado-backend/internal/validator"
)

// Authenticator is the AuthService surface the handler uses.
type Authenticator interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error)
	Logout(ctx context.Context, matricula string) error
}

// ProfileStore loads the account shown on /me.
type ProfileStore interface {
	GetByMatricula(ctx context.Context, matricula string) (*model.User, error)
	CurrentEnrollment(ctx context.Context, matricula string) (*model.Enrollment, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	auth  Authenticator
	users ProfileStore
	log   zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth Authenticator, users ProfileStore, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:  auth,
		users: users,
		log:   log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Validates matricula + senha and returns a JWT. A newer login replaces the
// previous session of the account.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Me godoc
// GET /api/v1/auth/me
// Returns the authenticated account and, for students, the current turma.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	user, err := h.users.GetByMatricula(ctx, claims.Matricula)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	var enrollment *model.Enrollment
	if user.Perfil == model.RoleStudent {
		enrollment, err = h.users.CurrentEnrollment(ctx, user.Matricula)
		if err != nil && !errors.Is(err, service.ErrNotFound) {
			failService(c, h.log, err)
			return
		}
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":        user,
		"turma_atual": enrollment,
	})
}

// Logout godoc
// POST /api/v1/auth/logout
// Ends the active session of the account.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), claims.Matricula); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
