package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/simulado-backend/internal/config"
	"github.com/stemsi/simulado-backend/internal/service"
)

const (
	refreshInterval = 15 * time.Second
	refreshTimeout  = 5 * time.Second // keeps a slow query from stalling the SSE loop
)

// MonitorSource builds the snapshot a monitor starts from.
type MonitorSource interface {
	Snapshot(ctx context.Context, simuladoID int64) (*service.MonitorSnapshot, error)
}

// MonitorHandler streams live attempt events of a simulado to staff.
type MonitorHandler struct {
	rdb       *redis.Client
	monitor   MonitorSource
	keepAlive time.Duration
	log       zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(rdb *redis.Client, monitor MonitorSource, keepAlive time.Duration, log zerolog.Logger) *MonitorHandler {
	if keepAlive <= 0 {
		keepAlive = 30 * time.Second
	}
	return &MonitorHandler{
		rdb:       rdb,
		monitor:   monitor,
		keepAlive: keepAlive,
		log:       log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorSimuladoSSE godoc
// GET /api/v1/admin/simulados/:id/monitor
// Sends a snapshot, then forwards every attempt event published for the
// simulado. A fresh snapshot follows bursts of activity.
func (h *MonitorHandler) MonitorSimuladoSSE(c *gin.Context) {
	simuladoID, ok := paramID(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	snap, err := h.snapshot(reqCtx, simuladoID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snap})
	c.Writer.Flush()

	channel := config.Keys.SimuladoMonitorChannel(simuladoID)
	pubsub := h.rdb.Subscribe(reqCtx, channel)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})
	dirty := false

	log := h.log.With().Int64("simulado_id", simuladoID).Logger()
	log.Info().Msg("Staff attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Staff disconnected from live monitor SSE")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSEData(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			snap, err := h.snapshot(reqCtx, simuladoID)
			if err != nil {
				log.Warn().Err(err).Msg("Monitor refresh failed")
				continue
			}
			c.SSEvent("message", gin.H{"type": "snapshot", "data": snap})
			c.Writer.Flush()
			dirty = false

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

func (h *MonitorHandler) snapshot(parent context.Context, simuladoID int64) (*service.MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitor.Snapshot(ctx, simuladoID)
}

func writeSSEData(c *gin.Context, data []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
