package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/database"
	"github.com/stemsi/simulado-backend/internal/logger"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	users := repository.NewUserRepository(pool)
	auth := service.NewAuthService(cfg, users, nil, log)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Criar usuário ===")

	matricula := prompt(reader, "Matrícula: ")
	if matricula == "" {
		fmt.Println("Erro: matrícula é obrigatória")
		return
	}

	fmt.Print("Senha: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Erro ao ler a senha")
		return
	}
	password := string(bytePassword)
	if len(password) < 6 {
		fmt.Println("Erro: a senha deve ter pelo menos 6 caracteres")
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	// An existing matricula only gets its password reset.
	if existing, err := users.GetByMatricula(ctx, matricula); err == nil {
		if !confirm(reader, fmt.Sprintf("Usuário '%s' já existe. Redefinir a senha? [s/N]: ", existing.Nome)) {
			return
		}
		if err := users.UpdatePassword(ctx, matricula, hash); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset password")
		}
		fmt.Printf("\nSenha de '%s' redefinida.\n", matricula)
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.Fatal().Err(err).Msg("Failed to look up user")
	}

	nome := prompt(reader, "Nome: ")
	if nome == "" {
		fmt.Println("Erro: nome é obrigatório")
		return
	}

	perfil := model.Role(prompt(reader, "Perfil (admin, professor, aluno) [admin]: "))
	if perfil == "" {
		perfil = model.RoleAdmin
	}
	if perfil != model.RoleStudent && !perfil.IsStaff() {
		fmt.Println("Erro: perfil inválido")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	user := &model.User{
		Matricula: matricula,
		Nome:      nome,
		Perfil:    perfil,
		SenhaHash: hash,
	}
	if err := users.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("Failed to create user")
	}

	if perfil == model.RoleStudent {
		turma := prompt(reader, "Turma (vazio para não matricular): ")
		if turma != "" {
			ano, err := strconv.Atoi(prompt(reader, "Ano letivo: "))
			if err != nil {
				fmt.Println("Erro: ano deve ser um número")
				return
			}
			if err := users.Enroll(ctx, model.Enrollment{Ano: ano, Matricula: matricula, Turma: turma}); err != nil {
				log.Fatal().Err(err).Msg("Failed to enroll student")
			}
			fmt.Printf("Matriculado em %s/%d\n", turma, ano)
		}
	}

	fmt.Printf("\nSucesso! Usuário '%s' (%s) criado com perfil %s\n", user.Nome, user.Matricula, user.Perfil)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func confirm(r *bufio.Reader, label string) bool {
	answer := strings.ToLower(prompt(r, label))
	return answer == "s" || answer == "sim"
}
