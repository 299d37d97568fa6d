package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
)

// SimuladoStore is the simulado persistence used by SimuladoService.
type SimuladoStore interface {
	GetByID(ctx context.Context, id int64) (*model.Simulado, error)
	// Update returns repository.ErrLimitReached when num_questoes would drop
	// below the linked count at write time.
	Update(ctx context.Context, s *model.Simulado) error
	List(ctx context.Context, f repository.SimuladoFilter) ([]model.Simulado, error)
	Create(ctx context.Context, s *model.Simulado) error
	Delete(ctx context.Context, id int64) error
	Reapply(ctx context.Context, id int64, inicio, fim time.Time, by string) (*model.Simulado, error)
	Replicate(ctx context.Context, id int64, turma, by string) (*model.Simulado, error)
	Applications(ctx context.Context, id int64) ([]model.Application, error)
	LinkedQuestions(ctx context.Context, id int64) ([]model.LinkedQuestion, error)
	AddQuestion(ctx context.Context, simuladoID, questionID int64, by string) error
	CreateQuestionInSimulado(ctx context.Context, simuladoID int64, q *model.Question, by string) error
	RemoveQuestion(ctx context.Context, simuladoID, questionID int64) error
}

// SimuladoDetail is a simulado with its configuration for staff screens.
type SimuladoDetail struct {
	*model.Simulado
	Status       model.ScheduleStatus   `json:"status_simulado"`
	Questions    []model.LinkedQuestion `json:"questoes"`
	Applications []model.Application    `json:"aplicacoes"`
}

// SimuladoService handles simulado administration.
type SimuladoService struct {
	store           SimuladoStore
	log             zerolog.Logger
	now             func() time.Time
	defaultDuration time.Duration
}

// NewSimuladoService creates a new SimuladoService. defaultDuration applies
// when a simulado is created without duracao_min.
func NewSimuladoService(store SimuladoStore, defaultDuration time.Duration, log zerolog.Logger) *SimuladoService {
	if defaultDuration <= 0 {
		defaultDuration = 90 * time.Minute
	}
	return &SimuladoService{
		store:           store,
		log:             log.With().Str("component", "simulado_service").Logger(),
		now:             time.Now,
		defaultDuration: defaultDuration,
	}
}

// List retrieves simulados, optionally filtered by year and turma.
func (s *SimuladoService) List(ctx context.Context, ano int, turma string) ([]model.Simulado, error) {
	sims, err := s.store.List(ctx, repository.SimuladoFilter{Ano: ano, Turma: turma})
	if err != nil {
		return nil, err
	}
	if sims == nil {
		sims = []model.Simulado{}
	}
	return sims, nil
}

// Get retrieves a simulado with its linked questions and application history.
func (s *SimuladoService) Get(ctx context.Context, id int64) (*SimuladoDetail, error) {
	sim, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := s.store.LinkedQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("linked questions: %w", err)
	}
	apps, err := s.store.Applications(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("applications: %w", err)
	}
	if questions == nil {
		questions = []model.LinkedQuestion{}
	}
	if apps == nil {
		apps = []model.Application{}
	}
	return &SimuladoDetail{
		Simulado:     sim,
		Status:       sim.ScheduleAt(s.now()),
		Questions:    questions,
		Applications: apps,
	}, nil
}

// Create schedules a new simulado.
func (s *SimuladoService) Create(ctx context.Context, req model.CreateSimuladoRequest, author string) (*model.Simulado, error) {
	if !req.FimEm.After(req.InicioEm) {
		return nil, ErrInvalidWindow
	}
	sim := &model.Simulado{
		Ano:         req.Ano,
		Titulo:      req.Titulo,
		Unidade:     req.Unidade,
		Turma:       req.Turma,
		Curso:       req.Curso,
		InicioEm:    req.InicioEm,
		FimEm:       req.FimEm,
		DuracaoMin:  req.DuracaoMin,
		NumQuestoes: req.NumQuestoes,
		ValorTotal:  req.ValorTotal,
		CriadoPor:   &author,
	}
	if sim.DuracaoMin <= 0 {
		sim.DuracaoMin = int(s.defaultDuration / time.Minute)
	}

	if err := s.store.Create(ctx, sim); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrDuplicateSimulado
		}
		return nil, err
	}
	s.log.Info().Int64("simulado_id", sim.ID).Str("turma", sim.Turma).Str("by", author).Msg("Simulado created")
	return sim, nil
}

// Update applies the non-nil fields of req.
func (s *SimuladoService) Update(ctx context.Context, id int64, req model.UpdateSimuladoRequest) (*model.Simulado, error) {
	sim, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Titulo != nil {
		sim.Titulo = *req.Titulo
	}
	if req.Unidade != nil {
		sim.Unidade = *req.Unidade
	}
	if req.Curso != nil {
		sim.Curso = *req.Curso
	}
	if req.InicioEm != nil {
		sim.InicioEm = *req.InicioEm
	}
	if req.FimEm != nil {
		sim.FimEm = *req.FimEm
	}
	if req.DuracaoMin != nil {
		sim.DuracaoMin = *req.DuracaoMin
	}
	if req.NumQuestoes != nil {
		sim.NumQuestoes = *req.NumQuestoes
	}
	if req.ValorTotal != nil {
		sim.ValorTotal = *req.ValorTotal
	}

	if !sim.FimEm.After(sim.InicioEm) {
		return nil, ErrInvalidWindow
	}
	if sim.NumQuestoes < sim.Vinculadas {
		return nil, ErrLimitBelowLinked
	}

	if err := s.store.Update(ctx, sim); err != nil {
		switch {
		case errors.Is(err, ErrConflict):
			return nil, ErrDuplicateSimulado
		case errors.Is(err, repository.ErrLimitReached):
			return nil, ErrLimitBelowLinked
		}
		return nil, err
	}
	return sim, nil
}

// Delete removes a simulado and everything attached to it.
func (s *SimuladoService) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Reapply opens a new window for the simulado. Students who already
// submitted stay locked out.
func (s *SimuladoService) Reapply(ctx context.Context, id int64, req model.ReapplyRequest, by string) (*model.Simulado, error) {
	if !req.FimEm.After(req.InicioEm) {
		return nil, ErrInvalidWindow
	}
	sim, err := s.store.Reapply(ctx, id, req.InicioEm, req.FimEm, by)
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("simulado_id", id).Time("inicio_em", req.InicioEm).Time("fim_em", req.FimEm).Msg("Simulado reapplied")
	return sim, nil
}

// Replicate copies a simulado with its questions to another turma of the same year.
func (s *SimuladoService) Replicate(ctx context.Context, id int64, req model.ReplicateRequest, by string) (*model.Simulado, error) {
	src, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if src.Turma == req.Turma {
		return nil, ErrSameTurma
	}
	if src.Vinculadas == 0 {
		return nil, ErrNoQuestionsConfigured
	}

	copied, err := s.store.Replicate(ctx, id, req.Turma, by)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrDuplicateSimulado
		}
		return nil, err
	}
	s.log.Info().Int64("simulado_id", id).Int64("copy_id", copied.ID).Str("turma", req.Turma).Msg("Simulado replicated")
	return copied, nil
}

// AddQuestion links a bank question within the simulado's question limit.
func (s *SimuladoService) AddQuestion(ctx context.Context, simuladoID, questionID int64, by string) error {
	return mapLinkErr(s.store.AddQuestion(ctx, simuladoID, questionID, by))
}

// CreateQuestion creates a bank question and links it to the simulado.
func (s *SimuladoService) CreateQuestion(ctx context.Context, simuladoID int64, req model.QuestionRequest, by string) (*model.Question, error) {
	q := QuestionFromRequest(req, by)
	if err := mapLinkErr(s.store.CreateQuestionInSimulado(ctx, simuladoID, q, by)); err != nil {
		return nil, err
	}
	return q, nil
}

// RemoveQuestion unlinks a question. Attempts already started keep their frozen order.
func (s *SimuladoService) RemoveQuestion(ctx context.Context, simuladoID, questionID int64) error {
	err := s.store.RemoveQuestion(ctx, simuladoID, questionID)
	if errors.Is(err, ErrNotFound) {
		return ErrQuestionNotLinked
	}
	return err
}

func mapLinkErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrLimitReached):
		return ErrQuestionLimit
	case errors.Is(err, ErrConflict):
		return ErrQuestionLinked
	default:
		return err
	}
}
