package model

import "time"

// AuditEntry records one successful staff mutation.
type AuditEntry struct {
	ID        int64             `json:"id"`
	At        time.Time         `json:"em"`
	Actor     string            `json:"matricula"`
	Perfil    Role              `json:"perfil"`
	IP        string            `json:"ip"`
	Action    string            `json:"acao"`
	EntityID  *int64            `json:"entidade_id,omitempty"`
	Status    int               `json:"status"`
	RequestID string            `json:"request_id,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Audit actions, named entity.verb.
const (
	AuditSimuladoCreate    = "simulado.create"
	AuditSimuladoUpdate    = "simulado.update"
	AuditSimuladoDelete    = "simulado.delete"
	AuditSimuladoReapply   = "simulado.reapply"
	AuditSimuladoReplicate = "simulado.replicate"
	AuditSimuladoLink      = "simulado.link_question"
	AuditSimuladoNewLinked = "simulado.create_question"
	AuditSimuladoUnlink    = "simulado.unlink_question"
	AuditQuestionCreate    = "questao.create"
	AuditQuestionUpdate    = "questao.update"
	AuditQuestionDelete    = "questao.delete"
	AuditAttemptBlock      = "tentativa.block"
	AuditAttemptRelease    = "tentativa.release"
)
