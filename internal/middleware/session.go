package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/service"
)

// CheckSession rejects tokens whose JTI is no longer the account's active
// session. The latest login wins, so an older device is signed out.
func CheckSession(auth TokenValidator, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		err := auth.ValidateSession(c.Request.Context(), claims.Matricula, claims.ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrSessionReplaced):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionReplaced)
		default:
			log.Error().Err(err).Str("matricula", claims.Matricula).Msg("Session lookup failed")
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
	}
}
