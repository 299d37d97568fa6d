package model

import "time"

// Role is the perfil stored on a user.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleProfessor Role = "professor"
	RoleStudent   Role = "aluno"
)

// IsStaff reports whether the role may manage simulados.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleProfessor
}

// User is an account identified by its matricula.
type User struct {
	Matricula string    `json:"matricula"`
	Nome      string    `json:"nome"`
	Perfil    Role      `json:"perfil"`
	SenhaHash string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrollment assigns a student to a turma for a school year.
type Enrollment struct {
	Ano       int    `json:"ano"`
	Matricula string `json:"matricula"`
	Turma     string `json:"turma"`
}

// LoginRequest is the payload for authenticating.
type LoginRequest struct {
	Matricula string `json:"matricula" binding:"required,max=60"`
	Senha     string `json:"senha" binding:"required,max=128"`
}

// LoginResponse is returned after successful authentication.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	User      User   `json:"user"`
}
