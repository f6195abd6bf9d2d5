package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"goods-registration/internal/config"
	"goods-registration/internal/domain/ports/adapter"
	"goods-registration/internal/usecase"
)

// Server exposes the registration API plus the operational surface
// (health probe, Prometheus metrics) on a single port.
type Server struct {
	cfg    *config.Config
	reg    usecase.RegistrationUseCase
	stage  adapter.PhotoStage
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(cfg *config.Config, reg usecase.RegistrationUseCase, stage adapter.PhotoStage, log *zerolog.Logger) *Server {
	return &Server{cfg: cfg, reg: reg, stage: stage, log: log}
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/registrations", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleCurrent)
			r.Delete("/", s.handleAbandon)
			r.Post("/barcode", s.handleCaptureBarcode)
			r.Post("/barcode/manual/begin", s.handleBeginManual)
			r.Post("/barcode/manual", s.handleManualBarcode)
			r.Post("/barcode/skip", s.handleSkipBarcode)
			r.Post("/barcode/retry", s.handleRetryBarcode)
			r.Post("/photo", s.handleCapturePhoto)
			r.Post("/photo/skip", s.handleSkipPhoto)
			r.Post("/enrich", s.handleEnrich)
			r.Post("/commit", s.handleCommit)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Admin.Port),
		Handler: s.routes(),
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
