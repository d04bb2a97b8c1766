package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"pulsecast/internal/domain"
	"pulsecast/internal/journal"
	"pulsecast/internal/scheduler"
)

// Tasks is the scheduler surface exposed over HTTP.
type Tasks interface {
	Stop(id, reason string) bool
	Task(id string) (domain.TaskInfo, bool)
	Tasks() []domain.TaskInfo
	Stats() domain.Stats
	History(ctx context.Context, limit int) ([]journal.Run, error)
}

type Options struct {
	Control     http.Handler
	StaticDir   string
	EnableDebug bool
}

type Server struct {
	r     *chi.Mux
	tasks Tasks
}

func NewServer(tasks Tasks, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)

	s := &Server{r: r, tasks: tasks}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/api/monitor", s.monitor)
	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Delete("/api/tasks/{id}", s.stopTask)
	r.Get("/api/history", s.history)
	if opts.Control != nil {
		r.Handle("/ws", opts.Control)
	}

	if opts.EnableDebug {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
		r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	}

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	st := s.tasks.Stats()
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "pulsecast_up 1\n")
	fmt.Fprintf(w, "pulsecast_active_tasks %d\n", st.ActiveTasks)
	fmt.Fprintf(w, "pulsecast_messages_sent_total %d\n", st.Delivered)
	fmt.Fprintf(w, "pulsecast_uptime_seconds %d\n", int64(st.Uptime.Seconds()))
}

func (s *Server) monitor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.MonitorEvent(s.tasks.Stats()))
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tasks.Tasks())
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tasks.Task(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// stopTask is idempotent: absent tasks also answer 204.
func (s *Server) stopTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.tasks.Stop(id, scheduler.ReasonUser) {
		log.Info().Str("task_id", id).Msg("task stopped over HTTP")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	runs, err := s.tasks.History(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
