package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
)

const auditTimeout = 3 * time.Second

// AuditRecorder persists staff actions.
type AuditRecorder interface {
	Record(ctx context.Context, e model.AuditEntry) error
}

// Auditor builds per-route audit middleware sharing one recorder.
type Auditor struct {
	rec AuditRecorder
	log zerolog.Logger
}

// NewAuditor creates an Auditor writing to rec.
func NewAuditor(rec AuditRecorder, log zerolog.Logger) *Auditor {
	return &Auditor{rec: rec, log: log.With().Str("component", "audit").Logger()}
}

// Track records action once the handler succeeded. The :id path parameter
// becomes the entity and the other path parameters go to meta. A failed
// write is logged and never changes the response.
func (a *Auditor) Track(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusMultipleChoices {
			return
		}
		claims := GetClaims(c)
		if claims == nil {
			return
		}

		entry := model.AuditEntry{
			Actor:     claims.Matricula,
			Perfil:    claims.Perfil,
			IP:        c.ClientIP(),
			Action:    action,
			Status:    status,
			RequestID: response.RequestID(c),
		}
		for _, p := range c.Params {
			if p.Key == "id" {
				if id, err := strconv.ParseInt(p.Value, 10, 64); err == nil {
					entry.EntityID = &id
				}
				continue
			}
			if entry.Meta == nil {
				entry.Meta = map[string]string{}
			}
			entry.Meta[p.Key] = p.Value
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditTimeout)
		defer cancel()
		if err := a.rec.Record(ctx, entry); err != nil {
			a.log.Error().Err(err).
				Str("action", action).
				Str("actor", entry.Actor).
				Str("request_id", entry.RequestID).
				Msg("Record staff action failed")
		}
	}
}
