package config

import "fmt"

// KeySpace builds every Redis key and channel name the service touches so
// they stay in one place.
type KeySpace struct {
	// ViolationAuditQueue carries accepted proctoring signals to the audit worker.
	ViolationAuditQueue string
}

var Keys = &KeySpace{
	ViolationAuditQueue: "simulado:violations:audit_queue",
}

// LoginAttemptsKey counts login attempts for a client address in the current window.
func (k *KeySpace) LoginAttemptsKey(clientIP string) string {
	return fmt.Sprintf("ratelimit:login:%s", clientIP)
}

// UserSessionKey stores the JTI of the latest token issued to a user.
func (k *KeySpace) UserSessionKey(matricula string) string {
	return fmt.Sprintf("session:%s", matricula)
}

// SimuladoMonitorChannel is the Pub/Sub channel staff monitors subscribe to.
func (k *KeySpace) SimuladoMonitorChannel(simuladoID int64) string {
	return fmt.Sprintf("simulado:%d:monitor", simuladoID)
}
