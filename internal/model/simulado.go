package model

import "time"

// ScheduleStatus is the lobby label for a simulado from one student's view.
type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "agendado"
	ScheduleOpen      ScheduleStatus = "em_andamento"
	ScheduleClosed    ScheduleStatus = "finalizado"
	ScheduleBlocked   ScheduleStatus = "bloqueado"
)

// Simulado is a scheduled mock exam for one turma.
type Simulado struct {
	ID           int64     `json:"id"`
	Ano          int       `json:"ano"`
	Titulo       string    `json:"titulo"`
	Unidade      string    `json:"unidade"`
	Turma        string    `json:"turma"`
	Curso        string    `json:"curso"`
	InicioEm     time.Time `json:"inicio_em"`
	FimEm        time.Time `json:"fim_em"`
	DuracaoMin   int       `json:"duracao_min"`
	NumQuestoes  int       `json:"num_questoes"`
	ValorTotal   float64   `json:"valor_total"`
	CriadoPor    *string   `json:"criado_por,omitempty"`
	CriadoEm     time.Time `json:"criado_em"`
	AtualizadoEm time.Time `json:"atualizado_em"`
	Vinculadas   int       `json:"questoes_vinculadas"`
}

// WindowContains reports whether now falls inside [inicio_em, fim_em].
func (s *Simulado) WindowContains(now time.Time) bool {
	return !now.Before(s.InicioEm) && !now.After(s.FimEm)
}

// Duration is the per-attempt time allowance.
func (s *Simulado) Duration() time.Duration {
	return time.Duration(s.DuracaoMin) * time.Minute
}

// ScheduleAt labels the window relative to now, ignoring blocks.
func (s *Simulado) ScheduleAt(now time.Time) ScheduleStatus {
	switch {
	case now.Before(s.InicioEm):
		return ScheduleScheduled
	case now.After(s.FimEm):
		return ScheduleClosed
	default:
		return ScheduleOpen
	}
}

// ApplicationKind distinguishes the original window from re-applications.
type ApplicationKind string

const (
	ApplicationOriginal  ApplicationKind = "original"
	ApplicationReapplied ApplicationKind = "reaplicacao"
)

// Application is one schedule window a simulado was offered in.
type Application struct {
	ID         int64           `json:"id"`
	SimuladoID int64           `json:"simulado_id"`
	InicioEm   time.Time       `json:"inicio_em"`
	FimEm      time.Time       `json:"fim_em"`
	Tipo       ApplicationKind `json:"tipo"`
	CriadoPor  *string         `json:"criado_por,omitempty"`
	CriadoEm   time.Time       `json:"criado_em"`
}

// CreateSimuladoRequest is the payload for creating a simulado.
type CreateSimuladoRequest struct {
	Ano         int       `json:"ano" binding:"required,min=2000,max=2100"`
	Titulo      string    `json:"titulo" binding:"required,min=3,max=255"`
	Unidade     string    `json:"unidade" binding:"required,max=60"`
	Turma       string    `json:"turma" binding:"required,max=60"`
	Curso       string    `json:"curso" binding:"omitempty,max=120"`
	InicioEm    time.Time `json:"inicio_em" binding:"required"`
	FimEm       time.Time `json:"fim_em" binding:"required,gtfield=InicioEm"`
	DuracaoMin  int       `json:"duracao_min" binding:"omitempty,min=1,max=600"`
	NumQuestoes int       `json:"num_questoes" binding:"required,min=1,max=500"`
	ValorTotal  float64   `json:"valor_total" binding:"required,gt=0,lte=1000"`
}

// UpdateSimuladoRequest is the payload for editing a simulado. Nil fields are kept.
type UpdateSimuladoRequest struct {
	Titulo      *string    `json:"titulo" binding:"omitempty,min=3,max=255"`
	Unidade     *string    `json:"unidade" binding:"omitempty,max=60"`
	Curso       *string    `json:"curso" binding:"omitempty,max=120"`
	InicioEm    *time.Time `json:"inicio_em" binding:"omitempty"`
	FimEm       *time.Time `json:"fim_em" binding:"omitempty"`
	DuracaoMin  *int       `json:"duracao_min" binding:"omitempty,min=1,max=600"`
	NumQuestoes *int       `json:"num_questoes" binding:"omitempty,min=1,max=500"`
	ValorTotal  *float64   `json:"valor_total" binding:"omitempty,gt=0,lte=1000"`
}

// ReapplyRequest moves a simulado to a new window.
type ReapplyRequest struct {
	InicioEm time.Time `json:"inicio_em" binding:"required"`
	FimEm    time.Time `json:"fim_em" binding:"required,gtfield=InicioEm"`
}

// ReplicateRequest copies a simulado to another turma of the same year.
type ReplicateRequest struct {
	Turma string `json:"turma" binding:"required,max=60"`
}
