package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/database"
	"github.com/stemsi/simulado-backend/internal/logger"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/repository"
	"github.com/stemsi/simulado-backend/internal/service"
)

// Seeds a turma with numbered test students for local load tests.
func main() {
	turma := flag.String("turma", "3A", "turma to enroll the students in")
	ano := flag.Int("ano", time.Now().Year(), "school year")
	count := flag.Int("n", 50, "number of students")
	password := flag.String("senha", "simulado123", "password shared by every seeded student")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	users := repository.NewUserRepository(pool)
	auth := service.NewAuthService(cfg, users, nil, log)

	// One hash for everyone keeps seeding fast at high bcrypt costs.
	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash password")
	}

	fmt.Printf("=== Seeding %d students into %s/%d ===\n", *count, *turma, *ano)

	created, enrolled := 0, 0
	for i := 1; i <= *count; i++ {
		matricula := fmt.Sprintf("%d%s%03d", *ano, *turma, i)
		user := &model.User{
			Matricula: matricula,
			Nome:      fmt.Sprintf("Aluno %s %02d", *turma, i),
			Perfil:    model.RoleStudent,
			SenhaHash: hash,
		}

		switch err := users.Create(ctx, user); {
		case err == nil:
			created++
		case errors.Is(err, repository.ErrConflict):
			// Already seeded; still (re)enroll below.
		default:
			fmt.Printf("Error creating %s: %v\n", matricula, err)
			continue
		}

		if err := users.Enroll(ctx, model.Enrollment{Ano: *ano, Matricula: matricula, Turma: *turma}); err != nil {
			fmt.Printf("Error enrolling %s: %v\n", matricula, err)
			continue
		}
		enrolled++
		if i%10 == 0 {
			fmt.Printf("Processed %d students...\n", i)
		}
	}

	fmt.Printf("\nSeed completed! Created %d, enrolled %d of %d students.\n", created, enrolled, *count)
}
