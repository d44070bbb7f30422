// ABOUTME: Gateway orchestrator wiring store, event bus, dispatcher, sweep, and HTTP
// ABOUTME: Owns server lifecycle: startup, background workers, graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quickmarket/pulse-gateway/internal/auth"
	"github.com/quickmarket/pulse-gateway/internal/config"
	"github.com/quickmarket/pulse-gateway/internal/dispatch"
	"github.com/quickmarket/pulse-gateway/internal/event"
	"github.com/quickmarket/pulse-gateway/internal/messaging"
	"github.com/quickmarket/pulse-gateway/internal/session"
	"github.com/quickmarket/pulse-gateway/internal/store"
	"github.com/quickmarket/pulse-gateway/internal/sweep"
)

// Gateway orchestrates the pulse-gateway server components: the SQLite store,
// the session registry, the event bus with its dispatcher, the unread sweep,
// and the HTTP server carrying both the REST API and the websocket endpoint.
type Gateway struct {
	config     *config.Config
	store      store.Store
	sessions   *session.Registry
	bus        *event.Bus
	dispatcher *dispatch.Dispatcher
	sweeper    *sweep.Aggregator
	service    *messaging.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// initStore creates a store from config, honoring the PULSE_DB_PATH override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("PULSE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Gateway from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	sessions := session.NewRegistry(logger.With("component", "sessions"))
	bus := event.NewBus(logger.With("component", "bus"))

	dispatcher := dispatch.New(sessions, s, logger.With("component", "dispatch"))
	dispatcher.Register(bus)

	service := messaging.New(s, bus, logger.With("component", "messaging"))

	gw := &Gateway{
		config:     cfg,
		store:      s,
		sessions:   sessions,
		bus:        bus,
		dispatcher: dispatcher,
		service:    service,
		logger:     logger.With("component", "gateway"),
	}

	if cfg.Sweep.Enabled {
		gw.sweeper = sweep.New(s, bus, cfg.Sweep.Interval, logger.With("component", "sweep"))
	}

	api := NewAPI(service, logger.With("component", "api"))
	socket := NewSocketHandler(sessions, cfg.Socket, logger.With("component", "socket"))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", gw.handleHealth)
	r.Get("/health/ready", gw.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(verifier))
		r.Mount("/api", api.Routes())
		r.Method(http.MethodGet, "/ws", socket)
	})

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the gateway and blocks until the context is canceled or a server
// fails. The event bus and sweep run as background workers sharing ctx, so a
// cancel drains queued events before Run returns.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	var workers sync.WaitGroup

	workers.Add(1)
	go func() {
		defer workers.Done()
		_ = g.bus.Run(ctx)
	}()

	if g.sweeper != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			_ = g.sweeper.Run(ctx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	workers.Wait()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context: the run context is
// already canceled by the time this is called.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, drops live sessions, and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	for _, s := range g.sessions.ByRole(store.RoleAdmin) {
		_ = s.Conn.Close()
	}
	for _, role := range []string{store.RoleCreator, store.RoleConsumer} {
		for _, s := range g.sessions.ByRole(role) {
			_ = s.Conn.Close()
		}
	}

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness along with the live session count.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", g.sessions.Len())
}
