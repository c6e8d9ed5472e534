package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liao/claim-assistant/internal/assistant"
	"github.com/liao/claim-assistant/internal/chat"
)

// Assistant 是 HTTP 层需要的编排器能力
type Assistant interface {
	Submit(ctx context.Context, text string) (assistant.Outcome, error)
	Select(index int) error
	NewChat() error
	Phase() assistant.Phase
	State() *chat.State
}

// Server 对外暴露单个对话。多用户隔离不在这里处理。
type Server struct {
	assistant Assistant
	gatherer  prometheus.Gatherer
	router    chi.Router
}

func New(a Assistant, gatherer prometheus.Gatherer) *Server {
	s := &Server{assistant: a, gatherer: gatherer}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.health)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/turns", s.submitTurn)
		r.Get("/sessions", s.listSessions)
		r.Post("/sessions", s.newChat)
		r.Get("/sessions/{index}", s.getSession)
		r.Put("/active", s.selectSession)
	})
	return r
}

// Run 阻塞到 ctx 取消，然后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type turnRequest struct {
	Text string `json:"text"`
}

func (t *turnRequest) Bind(r *http.Request) error {
	if strings.TrimSpace(t.Text) == "" {
		return assistant.ErrEmptyMessage
	}
	return nil
}

type turnResponse struct {
	assistant.Outcome
	Error string `json:"error,omitempty"`
}

func (s *Server) submitTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	out, err := s.assistant.Submit(r.Context(), req.Text)
	switch {
	case errors.Is(err, assistant.ErrEmptyMessage):
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	case errors.Is(err, assistant.ErrTurnInProgress):
		_ = render.Render(w, r, ErrConflict(err))
		return
	case err != nil:
		_ = render.Render(w, r, ErrInternal(err))
		return
	}

	resp := turnResponse{Outcome: out}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, s.assistant.State().Sessions())
}

// newChat 结束当前会话，下一次 POST /turns 会新建会话
func (s *Server) newChat(w http.ResponseWriter, r *http.Request) {
	err := s.assistant.NewChat()
	switch {
	case errors.Is(err, assistant.ErrTurnInProgress):
		_ = render.Render(w, r, ErrConflict(err))
		return
	case err != nil:
		_ = render.Render(w, r, ErrInternal(err))
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, s.assistant.State().Sessions())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(fmt.Errorf("bad session index: %w", err)))
		return
	}
	sess, err := s.assistant.State().Session(idx)
	if err != nil {
		_ = render.Render(w, r, ErrNotFound(err))
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, sess)
}

type selectRequest struct {
	Index *int `json:"index"`
}

func (s *selectRequest) Bind(r *http.Request) error {
	if s.Index == nil {
		return errors.New("index is required")
	}
	return nil
}

func (s *Server) selectSession(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := render.Bind(r, &req); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}

	err := s.assistant.Select(*req.Index)
	switch {
	case errors.Is(err, assistant.ErrTurnInProgress):
		_ = render.Render(w, r, ErrConflict(err))
		return
	case errors.Is(err, chat.ErrSessionIndex):
		_ = render.Render(w, r, ErrNotFound(err))
		return
	case err != nil:
		_ = render.Render(w, r, ErrInternal(err))
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, s.assistant.State().Sessions())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status": "ok",
		"phase":  s.assistant.Phase().String(),
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
