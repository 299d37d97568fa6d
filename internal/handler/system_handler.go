package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// SystemHandler reports process and dependency health.
type SystemHandler struct {
	db        *pgxpool.Pool
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(db *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis. Any failure answers 503.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("PostgreSQL health check failed")
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis health check failed")
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	response.Success(c, status, gin.H{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

// systemStats is the runtime view shown on the staff dashboard.
type systemStats struct {
	Uptime          string `json:"uptime"`
	GoVersion       string `json:"go_version"`
	Goroutines      int    `json:"goroutines"`
	HeapAlloc       uint64 `json:"heap_alloc"`
	NumGC           uint32 `json:"num_gc"`
	DBTotalConns    int32  `json:"db_total_conns"`
	DBIdleConns     int32  `json:"db_idle_conns"`
	AuditQueueDepth int64  `json:"fila_auditoria"`
}

// Stats godoc
// GET /api/v1/admin/sistema
// Returns runtime counters and the depth of the violation audit queue.
func (h *SystemHandler) Stats(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stat := h.db.Stat()
	out := systemStats{
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
		NumGC:        ms.NumGC,
		DBTotalConns: stat.TotalConns(),
		DBIdleConns:  stat.IdleConns(),
	}

	depth, err := h.rdb.LLen(c.Request.Context(), config.Keys.ViolationAuditQueue).Result()
	if err != nil {
		h.log.Warn().Err(err).Msg("Read audit queue depth failed")
	}
	out.AuditQueueDepth = depth

	response.Success(c, http.StatusOK, out)
}
