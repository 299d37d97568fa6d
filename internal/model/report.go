package model

import "time"

// BlockedAttempt is a row of the staff release list.
type BlockedAttempt struct {
	AttemptID    int64      `json:"tentativa_id"`
	SimuladoID   int64      `json:"simulado_id"`
	Titulo       string     `json:"titulo"`
	Turma        string     `json:"turma"`
	StudentID    string     `json:"matricula"`
	StudentName  string     `json:"nome"`
	Reason       string     `json:"motivo"`
	BlockedAt    *time.Time `json:"bloqueado_em"`
	BlockedBy    *string    `json:"bloqueado_por,omitempty"`
	Note         *string    `json:"observacao,omitempty"`
	Violations   int        `json:"avisos"`
	Grade        *float64   `json:"nota,omitempty"`
	CorrectCount *int       `json:"acertos,omitempty"`
}

// StudentResult is one submitted attempt in a student's history.
type StudentResult struct {
	AttemptID    int64     `json:"tentativa_id"`
	SimuladoID   int64     `json:"simulado_id"`
	Titulo       string    `json:"titulo"`
	Unidade      string    `json:"unidade"`
	FinishedAt   time.Time `json:"finalizado_em"`
	CorrectCount int       `json:"acertos"`
	Total        int       `json:"total"`
	Grade        float64   `json:"nota"`
	TotalValue   float64   `json:"valor_total"`
}

// MonitorRow is one student's live state in the staff monitor.
type MonitorRow struct {
	AttemptID  int64         `json:"tentativa_id"`
	StudentID  string        `json:"matricula"`
	Nome       string        `json:"nome"`
	Status     AttemptStatus `json:"status"`
	Answered   int           `json:"respondidas"`
	Total      int           `json:"total"`
	Violations int           `json:"avisos"`
	Blocked    bool          `json:"bloqueado"`
	EndsAt     time.Time     `json:"termina_em"`
}

// NoSubject labels questions filed without a materia.
const NoSubject = "Sem matéria"

// SubjectScore is one materia row of a finished attempt's breakdown.
type SubjectScore struct {
	Materia  string `json:"materia"`
	Total    int    `json:"total"`
	Answered int    `json:"respondidas"`
	Correct  int    `json:"acertos"`
}
