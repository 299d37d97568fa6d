package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
)

// RequireRole checks that the token's perfil is one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return requireRole(response.ErrForbidden, roles...)
}

// RequireStudent restricts a group to the student portal.
func RequireStudent() gin.HandlerFunc {
	return requireRole(response.ErrStudentAccessOnly, model.RoleStudent)
}

// RequireStaff restricts a group to admins and professors.
func RequireStaff() gin.HandlerFunc {
	return requireRole(response.ErrStaffAccessOnly, model.RoleAdmin, model.RoleProfessor)
}

func requireRole(code response.ErrCode, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if !slices.Contains(roles, claims.Perfil) {
			response.AbortFail(c, http.StatusForbidden, code)
			return
		}
		c.Next()
	}
}
