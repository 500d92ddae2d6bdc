package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"daybook-crypto/internal/auth"
)

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)

	r.Post("/api/register", s.handleRegister)
	r.Post("/api/login", s.handleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.Required(s.signer))

		pr.Get("/api/key/status", s.handleKeyStatus)
		pr.Post("/api/key/generate", s.handleKeyGenerate)
		pr.Post("/api/key/unlock", s.handleKeyUnlock)
		pr.Post("/api/key/recover", s.handleKeyRecover)
		pr.Post("/api/key/rotate", s.handleKeyRotate)
		pr.Post("/api/key/lock", s.handleKeyLock)

		pr.Post("/api/documents/{collection}", s.handleDocumentCreate)
		pr.Put("/api/documents/{collection}/{id}", s.handleDocumentPut)
		pr.Get("/api/documents/{collection}/{id}", s.handleDocumentGet)
		pr.Delete("/api/documents/{collection}/{id}", s.handleDocumentDelete)

		pr.Post("/api/migrate", s.handleMigrate)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}
