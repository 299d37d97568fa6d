package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/handler"
	"github.com/stemsi/simulado-backend/internal/middleware"
	"github.com/stemsi/simulado-backend/internal/model"
	"github.com/stemsi/simulado-backend/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	WS            *handler.WSHandler
	Simulado      *handler.SimuladoHandler
	Question      *handler.QuestionHandler
	Release       *handler.ReleaseHandler
	Monitor       *handler.MonitorHandler
	System        *handler.SystemHandler
	Audit         *handler.AuditHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	auth middleware.TokenValidator,
	limiter *middleware.LoginRateLimiter,
	auditor *middleware.Auditor,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestMetrics())

	brotli := middleware.DefaultBrotliConfig
	brotli.SkipPaths = []string{"/metrics", "/ws/"}
	router.Use(middleware.BrotliWithConfig(brotli))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.RequireAuth(auth)
	checkSession := middleware.CheckSession(auth, log)

	// ─── 1. Auth Group (Rate Limited) ──────────────────────────────────
	authAPI := router.Group("/api/v1/auth")
	authAPI.Use(middleware.NoStore())
	{
		authAPI.POST("/login", limiter.Middleware(), handlers.Auth.Login)
		authAPI.GET("/me", requireAuth, checkSession, handlers.Auth.Me)
		authAPI.POST("/logout", requireAuth, checkSession, handlers.Auth.Logout)
	}

	// ─── 2. Student Group (JWT + Single Session) ───────────────────────
	studentAPI := router.Group("/api/v1/aluno")
	studentAPI.Use(
		requireAuth,
		checkSession,
		middleware.RequireStudent(),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/simulados", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/simulados/:id/iniciar", handlers.StudentPortal.StartAttempt)
		studentAPI.GET("/tentativas/:id", handlers.StudentPortal.GetAttempt)
		studentAPI.GET("/tentativas/:id/questoes/:n", handlers.StudentPortal.GetQuestion)
		studentAPI.POST("/tentativas/:id/responder", handlers.StudentPortal.RecordAnswer)
		studentAPI.POST("/tentativas/:id/aviso", handlers.StudentPortal.ReportViolation)
		studentAPI.POST("/tentativas/:id/enviar", handlers.StudentPortal.Submit)
		studentAPI.GET("/tentativas/:id/materias", handlers.StudentPortal.GetSubjectBreakdown)
		studentAPI.GET("/resultados", handlers.StudentPortal.GetResults)
	}

	// ─── 3. WebSocket Group (token via query string) ───────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireAuth, checkSession, middleware.RequireStudent())
	{
		ws.GET("/aluno/tentativas/:id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Admin Group (JWT + perfil) ─────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(requireAuth, checkSession, middleware.RequireStaff())
	{
		// Simulados
		adminAPI.GET("/simulados", handlers.Simulado.ListSimulados)
		adminAPI.POST("/simulados", auditor.Track(model.AuditSimuladoCreate), handlers.Simulado.CreateSimulado)
		adminAPI.GET("/simulados/:id", handlers.Simulado.GetSimulado)
		adminAPI.PATCH("/simulados/:id", auditor.Track(model.AuditSimuladoUpdate), handlers.Simulado.UpdateSimulado)
		adminAPI.DELETE("/simulados/:id",
			middleware.RequireRole(model.RoleAdmin),
			auditor.Track(model.AuditSimuladoDelete),
			handlers.Simulado.DeleteSimulado,
		)
		adminAPI.POST("/simulados/:id/reaplicar", auditor.Track(model.AuditSimuladoReapply), handlers.Simulado.ReapplySimulado)
		adminAPI.POST("/simulados/:id/replicar", auditor.Track(model.AuditSimuladoReplicate), handlers.Simulado.ReplicateSimulado)
		adminAPI.POST("/simulados/:id/questoes", auditor.Track(model.AuditSimuladoLink), handlers.Simulado.LinkQuestion)
		adminAPI.POST("/simulados/:id/questoes/nova", auditor.Track(model.AuditSimuladoNewLinked), handlers.Simulado.CreateLinkedQuestion)
		adminAPI.DELETE("/simulados/:id/questoes/:question_id", auditor.Track(model.AuditSimuladoUnlink), handlers.Simulado.UnlinkQuestion)

		// Live monitoring (SSE)
		adminAPI.GET("/simulados/:id/monitor", handlers.Monitor.MonitorSimuladoSSE)

		// Question bank
		adminAPI.GET("/questoes", handlers.Question.ListQuestions)
		adminAPI.POST("/questoes", auditor.Track(model.AuditQuestionCreate), handlers.Question.CreateQuestion)
		adminAPI.GET("/questoes/:id", handlers.Question.GetQuestion)
		adminAPI.PUT("/questoes/:id", auditor.Track(model.AuditQuestionUpdate), handlers.Question.UpdateQuestion)
		adminAPI.DELETE("/questoes/:id", auditor.Track(model.AuditQuestionDelete), handlers.Question.DeleteQuestion)

		// Blocks and releases
		adminAPI.GET("/liberacoes", handlers.Release.ListBlocked)
		adminAPI.POST("/liberacoes/:id/liberar", auditor.Track(model.AuditAttemptRelease), handlers.Release.Release)
		adminAPI.POST("/tentativas/:id/bloquear", auditor.Track(model.AuditAttemptBlock), handlers.Release.Block)

		// System
		adminAPI.GET("/sistema",
			middleware.RequireRole(model.RoleAdmin),
			handlers.System.Stats,
		)
		adminAPI.GET("/auditoria",
			middleware.RequireRole(model.RoleAdmin),
			handlers.Audit.ListAudit,
		)
	}

	return router
}
