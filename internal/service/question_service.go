package service

import (
	"context"
	"errors"
	"strings"

	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/response"
)

// QuestionStore is the question bank persistence.
type QuestionStore interface {
	GetByID(ctx context.Context, id int64) (*model.Question, error)
	Create(ctx context.Context, q *model.Question) error
	Update(ctx context.Context, q *model.Question) error
	List(ctx context.Context, f repository.QuestionFilter, limit, offset int) ([]model.Question, int, error)
	// Delete returns repository.ErrReferenced while the question is in use.
	Delete(ctx context.Context, id int64) error
}

const maxQuestionsPerPage = 100

// QuestionService handles question bank business logic.
type QuestionService struct {
	store QuestionStore
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(store QuestionStore) *QuestionService {
	return &QuestionService{store: store}
}

// QuestionFromRequest builds a question owned by author.
func QuestionFromRequest(req model.QuestionRequest, author string) *model.Question {
	q := &model.Question{
		Ano:          req.Ano,
		Enunciado:    req.Enunciado,
		AlternativaA: req.AlternativaA,
		AlternativaB: req.AlternativaB,
		AlternativaC: req.AlternativaC,
		AlternativaD: req.AlternativaD,
		AlternativaE: req.AlternativaE,
		Correta:      req.Correta,
		Materia:      req.Materia,
		ImagemURL:    req.ImagemURL,
	}
	if author != "" {
		q.CriadaPor = &author
	}
	return q
}

// Get retrieves a question with its key.
func (s *QuestionService) Get(ctx context.Context, id int64) (*model.Question, error) {
	return s.store.GetByID(ctx, id)
}

// Create adds a question to the bank.
func (s *QuestionService) Create(ctx context.Context, req model.QuestionRequest, author string) (*model.Question, error) {
	q := QuestionFromRequest(req, author)
	if err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Update replaces a question. A changed key only grades answers written afterwards.
func (s *QuestionService) Update(ctx context.Context, id int64, req model.QuestionRequest) (*model.Question, error) {
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	q := QuestionFromRequest(req, "")
	q.ID = id
	if err := s.store.Update(ctx, q); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return q, nil
}

// Delete removes a question that no simulado or attempt refers to.
func (s *QuestionService) Delete(ctx context.Context, id int64) error {
	err := s.store.Delete(ctx, id)
	if errors.Is(err, repository.ErrReferenced) {
		return ErrQuestionInUse
	}
	return err
}

// List searches the bank with pagination.
func (s *QuestionService) List(ctx context.Context, f repository.QuestionFilter, page, perPage int) ([]model.Question, *response.Pagination, error) {
	f.Search = strings.TrimSpace(f.Search)
	pagination, offset := response.NewPagination(page, perPage, maxQuestionsPerPage)

	questions, total, err := s.store.List(ctx, f, pagination.PerPage, offset)
	if err != nil {
		return nil, nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	pagination.SetTotal(total)
	return questions, pagination, nil
}
