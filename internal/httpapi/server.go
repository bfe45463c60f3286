package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/service"
	"github.com/BrandonDHaskell/Rollcall/internal/rollcall/store"
)

// Dependencies are the collaborators NewServer wires into handlers.
type Dependencies struct {
	Logger *slog.Logger
	Addr   string
	Store  store.Store
	// Gate admits posted recognitions under daily dedup.
	Gate  *service.Gate
	Admin *service.AdminService
	// Monitor may be nil when no recognition sidecar is configured.
	Monitor *service.Monitor
	Now     func() time.Time
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	router     *chi.Mux

	store   store.Store
	gate    *service.Gate
	admin   *service.AdminService
	monitor *service.Monitor
	now     func() time.Time
}

// NewServer mounts /healthz and the /v1 API. A nil Logger discards.
func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	r := chi.NewRouter()
	s := &Server{
		logger:  d.Logger,
		router:  r,
		store:   d.Store,
		gate:    d.Gate,
		admin:   d.Admin,
		monitor: d.Monitor,
		now:     d.Now,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(loggingMiddleware(d.Logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/identities", s.handleAddIdentity)
		r.Get("/identities", s.handleListIdentities)
		r.Get("/identities/{id}", s.handleGetIdentity)

		r.Get("/attendance", s.handleListAttendance)
		r.Post("/recognitions", s.handleRecognition)
		r.Get("/stats", s.handleStats)

		r.Post("/admin/login", s.handleAdminLogin)
		r.Post("/admin/password", s.handleAdminPassword)

		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions/current", s.handleSessionStatus)
		r.Delete("/sessions/current", s.handleStopSession)
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start blocks serving on Addr until Shutdown.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
