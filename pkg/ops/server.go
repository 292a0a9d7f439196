package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openmarketlabs/relay-backend/pkg/logger"
)

// Checker reports whether a dependency is reachable.
type Checker func(ctx context.Context) error

// ServerParams configures the ops listener carried by every long-running
// binary: health probes plus the Prometheus scrape endpoint.
type ServerParams struct {
	Addr     string
	Env      string
	Registry *prometheus.Registry
	Logger   *logger.Logger
	Checks   map[string]Checker
}

type Server struct {
	server *http.Server
	logg   *logger.Logger
}

func NewServer(params ServerParams) (*Server, error) {
	if params.Addr == "" {
		return nil, fmt.Errorf("listen address required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Get("/healthz", healthzHandler(params.Env, params.Checks))
	if params.Registry != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	return &Server{
		server: &http.Server{
			Addr:              params.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logg: params.Logger,
	}, nil
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func healthzHandler(env string, checks map[string]Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		response := map[string]string{"status": "ok"}
		if env != "" {
			response["env"] = env
		}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				response["status"] = "degraded"
				response[name] = err.Error()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
