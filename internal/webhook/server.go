package webhook

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rentora-hq/extraction-gateway/internal/logger"
)

const gracefulShutdownTimeout = 5 * time.Second

// Server hosts the provider callback endpoints.
type Server struct {
	addr    string
	handler *KoncileHandler
	log     logger.Logger
}

// NewServer builds the webhook HTTP server.
func NewServer(addr string, handler *KoncileHandler, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Server{addr: addr, handler: handler, log: log}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		s.requestLogger,
	)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Post("/webhooks/document-extraction/koncile", s.handler.ServeHTTP)

	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Router()}

	go func() {
		<-ctx.Done()
		s.log.InfoObj("webhook server shutting down", "server_state", map[string]any{
			"reason": ctx.Err().Error(),
		})
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
	}()

	s.log.InfoObj("webhook server listening", "server_state", map[string]any{
		"addr": s.addr,
	})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.DebugObj("http request handled", "http_request", map[string]any{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
