package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
	"github.com/stemsi/simulado-backend/internal/validator"
	ws "github.com/stemsi/simulado-backend/internal/websocket"
)

// wsOpTimeout bounds each engine call made on behalf of a frame.
const wsOpTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the live attempt channel: the same answer, violation and
// submit operations as the REST portal over one socket.
type WSHandler struct {
	attempts StudentAttempts
	log      zerolog.Logger
	upgrader websocket.Upgrader
	idle     time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts StudentAttempts, log zerolog.Logger, allowedOrigins []string, idle time.Duration) *WSHandler {
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &WSHandler{
		attempts: attempts,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		idle:     idle,
	}
}

// AttemptStream godoc
// WS /ws/v1/aluno/tentativas/:id/stream?token=...
// Sends the attempt state on connect, then serves frames until the attempt
// is finalized or the client goes quiet.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, ok := paramID(c, "id")
	if !ok {
		return
	}

	// Ownership and existence are checked before the upgrade so a bad id
	// gets a regular HTTP error.
	summary, err := h.attempts.Summary(c.Request.Context(), claims.Matricula, attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("matricula", claims.Matricula).
		Int64("attempt_id", attemptID).
		Logger()
	wsLog.Info().Msg("Student connected")

	if summary.Result != nil {
		_ = ws.WriteEvent(conn, ws.EventFinalized, summary.Result)
		return
	}
	if err := ws.WriteEvent(conn, ws.EventState, summary); err != nil {
		return
	}

	s := &wsSession{h: h, conn: conn, student: claims.Matricula, attemptID: attemptID, log: wsLog}
	for {
		data, err := ws.ReadMessage(conn, h.idle)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		if done := s.dispatch(data); done {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "finalizado"),
				time.Now().Add(time.Second))
			return
		}
	}
}

// wsSession is the per-connection state of an attempt stream.
type wsSession struct {
	h         *WSHandler
	conn      *websocket.Conn
	student   string
	attemptID int64
	log       zerolog.Logger
}

// dispatch handles one frame and reports whether the attempt is finished.
func (s *wsSession) dispatch(data []byte) bool {
	var env ws.RequestEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.writeCode(response.ErrInvalidPayload, nil)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
	defer cancel()

	switch env.Action {
	case ws.ActionPing:
		_ = ws.WriteEvent(s.conn, ws.EventPong, nil)
		return false

	case ws.ActionAnswer:
		var req ws.AnswerRequest
		if fields := validator.DecodeAndValidate(data, &req); fields != nil {
			s.writeCode(response.ErrValidation, fields)
			return false
		}
		out, err := s.h.attempts.RecordAnswer(ctx, s.student, s.attemptID, model.AnswerRequest{
			QuestionID: req.QuestionID,
			Choice:     req.Choice,
		})
		if err != nil {
			return s.writeErr(err)
		}
		if out.Finalized != nil {
			_ = ws.WriteEvent(s.conn, ws.EventFinalized, out.Finalized)
			return true
		}
		_ = ws.WriteEvent(s.conn, ws.EventSaved, out)
		return false

	case ws.ActionViolation:
		var req ws.ViolationRequest
		if fields := validator.DecodeAndValidate(data, &req); fields != nil {
			s.writeCode(response.ErrValidation, fields)
			return false
		}
		out, err := s.h.attempts.ReportViolation(ctx, s.student, s.attemptID, model.ViolationRequest{
			Kind:   req.Kind,
			Detail: req.Detail,
		})
		if err != nil {
			return s.writeErr(err)
		}
		_ = ws.WriteEvent(s.conn, ws.EventViolation, out)
		if out.Closed {
			if out.Finalized != nil {
				_ = ws.WriteEvent(s.conn, ws.EventFinalized, out.Finalized)
			}
			return true
		}
		return false

	case ws.ActionSubmit:
		var req ws.SubmitRequest
		if fields := validator.DecodeAndValidate(data, &req); fields != nil {
			s.writeCode(response.ErrValidation, fields)
			return false
		}
		result, err := s.h.attempts.Submit(ctx, s.student, s.attemptID)
		if err != nil {
			return s.writeErr(err)
		}
		s.log.Info().Float64("grade", result.Grade).Str("reason", string(result.Reason)).Msg("Attempt finalized over WebSocket")
		_ = ws.WriteEvent(s.conn, ws.EventFinalized, result)
		return true

	default:
		s.log.Warn().Str("action", string(env.Action)).Msg("Unknown action")
		s.writeCode(response.ErrInvalidPayload, map[string]string{"action": "ação desconhecida: " + string(env.Action)})
		return false
	}
}

// writeErr reports a service error. A finished attempt ends the stream.
func (s *wsSession) writeErr(err error) bool {
	status, code, details := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("WebSocket operation failed")
	}
	_ = ws.WriteErrorDetails(s.conn, string(code), response.GetMessage(code), details)
	return code == response.ErrAttemptFinished || code == response.ErrAttemptNotFound
}

func (s *wsSession) writeCode(code response.ErrCode, fields map[string]string) {
	_ = ws.WriteError(s.conn, string(code), response.GetMessage(code), fields)
}
