// Package control serves the websocket control channel: it turns start, stop and
// monitor requests into scheduler calls and streams task events back.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"pulsecast/internal/domain"
	"pulsecast/internal/scheduler"
)

// Controller is the part of the scheduler the control channel drives.
type Controller interface {
	Start(req domain.StartRequest, owner string, emit domain.Emitter) (string, error)
	Stop(id, reason string) bool
	StopOwnedBy(owner, reason string) int
	Stats() domain.Stats
}

type Config struct {
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	RatePerSec       float64
	Burst            int
	MaxMessageBytes  int64
	SendBuffer       int
	AllowedOrigins   []string
	KeepOnDisconnect bool
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 25 * time.Second
	}
	if c.PongTimeout <= c.PingInterval {
		c.PongTimeout = c.PingInterval + c.PingInterval/2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 4 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}

type Handler struct {
	svc      Controller
	cfg      Config
	upgrader websocket.Upgrader
}

func NewHandler(svc Controller, cfg Config) *Handler {
	cfg = cfg.withDefaults()
	h := &Handler{svc: svc, cfg: cfg}
	if len(cfg.AllowedOrigins) > 0 {
		allowed := map[string]bool{}
		for _, o := range cfg.AllowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed["*"] || allowed[r.Header.Get("Origin")]
		}
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newConn("conn_"+uuid.NewString(), ws, h.cfg)
	limiter := rate.NewLimiter(rate.Limit(h.cfg.RatePerSec), h.cfg.Burst)
	log.Info().Str("conn_id", c.id).Str("remote", r.RemoteAddr).Msg("control client connected")

	go c.writeLoop()
	c.readLoop(func(data []byte) {
		if !limiter.Allow() {
			log.Debug().Str("conn_id", c.id).Msg("control message rate exceeded, dropping")
			return
		}
		h.Handle(c.id, c, data)
	})
	c.close()

	n := 0
	if !h.cfg.KeepOnDisconnect {
		n = h.svc.StopOwnedBy(c.id, scheduler.ReasonDisconnect)
	}
	log.Info().Str("conn_id", c.id).Int("tasks_stopped", n).Msg("control client disconnected")
}

// Handle processes one inbound frame. Malformed frames are dropped.
func (h *Handler) Handle(owner string, emit domain.Emitter, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conn_id", owner).Msg("control message handler panicked")
		}
	}()

	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		log.Debug().Err(err).Str("conn_id", owner).Msg("dropping malformed control message")
		return
	}

	switch in.Type {
	case typeStart:
		id, err := h.svc.Start(in.StartRequest(), owner, emit)
		if err != nil {
			log.Warn().Err(err).Str("conn_id", owner).Msg("start rejected")
			emit.Emit(domain.LogEvent(errorText(err)))
			return
		}
		log.Info().Str("conn_id", owner).Str("task_id", id).Msg("task created")
	case typeStop:
		if in.TaskID == "" {
			return
		}
		if !h.svc.Stop(in.TaskID, scheduler.ReasonUser) {
			emit.Emit(domain.LogEvent(fmt.Sprintf("[Task %s] %v: not running", in.TaskID, domain.ErrUnknownTask)))
		}
	case typeMonitor:
		emit.Emit(domain.MonitorEvent(h.svc.Stats()))
	default:
		log.Debug().Str("conn_id", owner).Str("type", in.Type).Msg("dropping unknown control message")
	}
}

func errorText(err error) string {
	if errors.Is(err, domain.ErrInputInvalid) {
		return "Error: " + err.Error()
	}
	return "Error: failed to start task: " + err.Error()
}
