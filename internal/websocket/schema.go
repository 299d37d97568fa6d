package websocket

import (
	"github.com/stemsi/simulado-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest records one answer of the open attempt.
type AnswerRequest struct {
	Action     Action       `json:"action"`
	QuestionID int64        `json:"questao_id" binding:"required,gt=0"`
	Choice     model.Choice `json:"marcada" binding:"required,oneof=A B C D E"`
}

// ViolationRequest reports a proctoring signal from the browser.
type ViolationRequest struct {
	Action Action              `json:"action"`
	Kind   model.ViolationKind `json:"tipo" binding:"required,oneof=tab_switch blur fullscreen_exit page_hide"`
	Detail string              `json:"detalhe" binding:"omitempty,max=500"`
}

// SubmitRequest finishes the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventSaved     Event = "saved"
	EventViolation Event = "violation"
	EventFinalized Event = "finalized"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// Message is every server frame: an event tag plus its payload.
type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

// ErrorResponse carries the same machine-readable codes as the HTTP API.
type ErrorResponse struct {
	Event   Event             `json:"event"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details any               `json:"detalhes,omitempty"`
}
