package model

import "time"

// Choice is a multiple-choice letter.
type Choice string

// Valid reports whether c is one of A through E.
func (c Choice) Valid() bool {
	switch c {
	case "A", "B", "C", "D", "E":
		return true
	}
	return false
}

// Question is a question-bank entry with its answer key.
type Question struct {
	ID           int64     `json:"id"`
	Ano          int       `json:"ano"`
	Enunciado    string    `json:"enunciado"`
	AlternativaA string    `json:"alternativa_a"`
	AlternativaB string    `json:"alternativa_b"`
	AlternativaC string    `json:"alternativa_c"`
	AlternativaD string    `json:"alternativa_d"`
	AlternativaE *string   `json:"alternativa_e,omitempty"`
	Correta      Choice    `json:"correta"`
	Materia      string    `json:"materia"`
	ImagemURL    *string   `json:"imagem_url,omitempty"`
	CriadaPor    *string   `json:"criada_por,omitempty"`
	CriadaEm     time.Time `json:"criada_em"`
	AtualizadaEm time.Time `json:"atualizada_em"`
}

// Alternative is one option as shown to a student.
type Alternative struct {
	Letter Choice `json:"letra"`
	Text   string `json:"texto"`
}

// QuestionForStudent is a question without the answer key.
type QuestionForStudent struct {
	ID           int64         `json:"id"`
	Enunciado    string        `json:"enunciado"`
	Materia      string        `json:"materia"`
	ImagemURL    *string       `json:"imagem_url,omitempty"`
	Alternativas []Alternative `json:"alternativas"`
}

// ForStudent strips the answer key. Option E is omitted when unset.
func (q *Question) ForStudent() QuestionForStudent {
	alts := []Alternative{
		{Letter: "A", Text: q.AlternativaA},
		{Letter: "B", Text: q.AlternativaB},
		{Letter: "C", Text: q.AlternativaC},
		{Letter: "D", Text: q.AlternativaD},
	}
	if q.AlternativaE != nil && *q.AlternativaE != "" {
		alts = append(alts, Alternative{Letter: "E", Text: *q.AlternativaE})
	}
	return QuestionForStudent{
		ID:           q.ID,
		Enunciado:    q.Enunciado,
		Materia:      q.Materia,
		ImagemURL:    q.ImagemURL,
		Alternativas: alts,
	}
}

// IsCorrect grades a choice against the current key.
func (q *Question) IsCorrect(c Choice) bool {
	return q.Correta == c
}

// QuestionRequest is the payload for creating or replacing a question.
type QuestionRequest struct {
	Ano          int     `json:"ano" binding:"required,min=2000,max=2100"`
	Enunciado    string  `json:"enunciado" binding:"required,min=1,max=10000"`
	AlternativaA string  `json:"alternativa_a" binding:"required,max=2000"`
	AlternativaB string  `json:"alternativa_b" binding:"required,max=2000"`
	AlternativaC string  `json:"alternativa_c" binding:"required,max=2000"`
	AlternativaD string  `json:"alternativa_d" binding:"required,max=2000"`
	AlternativaE *string `json:"alternativa_e" binding:"omitempty,max=2000"`
	Correta      Choice  `json:"correta" binding:"required,oneof=A B C D E"`
	Materia      string  `json:"materia" binding:"omitempty,max=120"`
	ImagemURL    *string `json:"imagem_url" binding:"omitempty,url,max=500"`
}

// LinkedQuestion is a question as configured inside a simulado.
type LinkedQuestion struct {
	Question
	Ordem int `json:"ordem"`
}

// LinkQuestionRequest links an existing bank question to a simulado.
type LinkQuestionRequest struct {
	QuestionID int64 `json:"questao_id" binding:"required,gt=0"`
}
