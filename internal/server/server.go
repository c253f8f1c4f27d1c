// Package server composes the gateway's middleware pipeline and routes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/labelzoom/edge-gateway/internal/archive"
	"github.com/labelzoom/edge-gateway/internal/background"
	"github.com/labelzoom/edge-gateway/internal/config"
	"github.com/labelzoom/edge-gateway/internal/handlers"
	"github.com/labelzoom/edge-gateway/internal/license"
	"github.com/labelzoom/edge-gateway/internal/proxy"
	"github.com/labelzoom/edge-gateway/internal/requestid"
	"github.com/labelzoom/edge-gateway/internal/storage"
	"github.com/labelzoom/edge-gateway/internal/telemetry"
)

// Deps carries the wired components the router needs. Archive and Emitter
// are optional; a nil value disables that concern without changing the
// response path.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *storage.Store
	Forwarder *proxy.Forwarder
	Archive   archive.ObjectStore
	Emitter   *telemetry.Emitter
	Tracker   *background.Tracker

	// RemoteClient fetches caller-supplied URLs for the url-to-zpl route.
	// Defaults to a client on proxy.SafeTransport.
	RemoteClient *http.Client

	// Sample overrides the archival sampling draw in tests.
	Sample func() float64
}

type Server struct {
	Router     *chi.Mux
	httpServer *http.Server
	logger     *slog.Logger
	tracker    *background.Tracker
	drainGrace time.Duration
}

func New(deps Deps) *Server {
	cfg := deps.Config
	logger := deps.Logger

	remoteClient := deps.RemoteClient
	if remoteClient == nil {
		remoteClient = &http.Client{Transport: proxy.SafeTransport, Timeout: 30 * time.Second}
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(requestid.Middleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(TimeoutMiddleware(cfg.Server.RequestTimeout))
	r.Use(proxy.RelativeRedirects(cfg.Gateway.Domain))

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "edge-gateway")
	})

	if deps.Tracker != nil {
		r.Use(background.Middleware(deps.Tracker))
	}

	withConn := storage.WithConnection(deps.Store, logger)
	authenticator := license.NewAuthenticator(logger)

	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Gateway.AllowedOrigins,
			AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			ExposedHeaders:   []string{"Retry-After", requestid.Header},
			AllowCredentials: true,
			MaxAge:           86400,
		}))

		api.Route("/v{version}/convert", func(cv chi.Router) {
			cv.With(withConn, license.Middleware(authenticator, logger)).
				Get("/url/to/zpl/*", handlers.FetchRemote(remoteClient, logger))

			convert := cv.With(
				RequireContentType,
				RequireBody,
				archive.Middleware(archive.Options{
					Store:      deps.Archive,
					SampleRate: cfg.Gateway.LogSampleRate,
					Sample:     deps.Sample,
					Logger:     logger,
				}),
			)
			if deps.Emitter != nil {
				// Innermost so the snapshot reflects the final response headers.
				convert = convert.With(telemetry.Middleware(deps.Emitter, logger))
			}
			convert.Post("/{sourceFormat}/to/{targetFormat}", deps.Forwarder.ServeHTTP)
		})

		api.With(withConn).Get("/v{version}/heartbeat/{probe}", handlers.Heartbeat(logger))
		api.With(withConn).Post("/v3/auth/login",
			handlers.Login([]byte(cfg.Auth.SessionSigningKey), cfg.Auth.SessionTTL, logger))

		// Everything else under /api is the backend's.
		api.NotFound(deps.Forwarder.ServeHTTP)
		api.MethodNotAllowed(deps.Forwarder.ServeHTTP)
	})

	r.With(withConn).Get("/download/{version}/{packageName}",
		handlers.Download(cfg.Download.BaseURL, cfg.Download.Product, logger))

	r.NotFound(deps.Forwarder.ServeHTTP)
	r.MethodNotAllowed(deps.Forwarder.ServeHTTP)

	return &Server{
		Router: r,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: r,
		},
		logger:     logger,
		tracker:    deps.Tracker,
		drainGrace: cfg.Server.DrainGrace,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, then drains detached archive and
// telemetry tasks up to the configured grace.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if s.tracker != nil && !s.tracker.Wait(s.drainGrace) {
		s.logger.Warn("background tasks still running after drain grace",
			slog.Duration("grace", s.drainGrace))
	}
	return nil
}
