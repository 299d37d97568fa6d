package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WriteEvent sends a tagged payload over the WebSocket.
func WriteEvent(conn *websocket.Conn, event Event, data any) error {
	return WriteTyped(conn, Message{Event: event, Data: data})
}

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, code, message string, fields map[string]string) error {
	return WriteTyped(conn, ErrorResponse{
		Event:   EventError,
		Code:    code,
		Message: message,
		Fields:  fields,
	})
}

// WriteErrorDetails sends an ErrorResponse with the typed payload of a domain error.
func WriteErrorDetails(conn *websocket.Conn, code, message string, details any) error {
	return WriteTyped(conn, ErrorResponse{
		Event:   EventError,
		Code:    code,
		Message: message,
		Details: details,
	})
}

// ReadMessage reads one text frame, closing the connection when the client
// stays silent for longer than idle.
func ReadMessage(conn *websocket.Conn, idle time.Duration) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	_, data, err := conn.ReadMessage()
	return data, err
}
