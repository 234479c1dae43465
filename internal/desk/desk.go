// ABOUTME: Desk orchestrator that builds and runs the livedesk service
// ABOUTME: Owns component wiring, startup recovery, health endpoints, and graceful shutdown

package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/orbiterp/livedesk/internal/agent"
	"github.com/orbiterp/livedesk/internal/chat"
	"github.com/orbiterp/livedesk/internal/config"
	"github.com/orbiterp/livedesk/internal/notify"
	"github.com/orbiterp/livedesk/internal/queue"
	"github.com/orbiterp/livedesk/internal/registry"
	"github.com/orbiterp/livedesk/internal/router"
	"github.com/orbiterp/livedesk/internal/store"
	"github.com/orbiterp/livedesk/internal/typing"
)

// shutdownTimeout bounds the graceful teardown of the cron scheduler and
// the HTTP server.
const shutdownTimeout = 5 * time.Second

// Desk owns every livedesk component and their lifecycle.
type Desk struct {
	cfg    *config.Config
	logger *slog.Logger

	store      store.Store
	pool       *agent.Pool
	queue      *queue.Queue
	registry   *registry.Registry
	typing     *typing.Tracker
	hub        *notify.Hub
	fanout     *notify.Fanout
	router     *router.Router
	chat       *chat.Service
	cron       *cron.Cron
	httpServer *http.Server

	// configPath enables hot-reload of the routing tunables when set.
	configPath string
}

// initStore opens the SQLite store, honoring the LIVEDESK_DB_PATH override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("LIVEDESK_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New builds a desk from the config. Nothing starts running until Run;
// New only opens the store and, when configured, the AMQP connection.
func New(cfg *config.Config, logger *slog.Logger) (*Desk, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	d, err := build(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return d, nil
}

// NewWithStore builds a desk over an already-open store. The desk takes
// ownership and closes it on shutdown. Used by tests to run against the
// in-memory mock.
func NewWithStore(cfg *config.Config, st store.Store, logger *slog.Logger) (*Desk, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return build(cfg, st, logger)
}

func build(cfg *config.Config, st store.Store, logger *slog.Logger) (*Desk, error) {
	dir := agent.NewStoreDirectory(st)
	pool := agent.NewPool(dir, logger)
	q := queue.New()
	reg := registry.New(logger)
	tracker := typing.New(typing.DefaultTTL)

	hub := notify.NewHub(logger)
	transports := []notify.Transport{hub}
	if cfg.Notifications.AMQP.Enabled {
		amqpTransport, err := notify.NewAMQPTransport(
			cfg.Notifications.AMQP.URL,
			cfg.Notifications.AMQP.Exchange,
			logger)
		if err != nil {
			tracker.Close()
			_ = hub.Close()
			return nil, fmt.Errorf("connecting AMQP transport: %w", err)
		}
		transports = append(transports, amqpTransport)
	}
	fanout := notify.NewFanout(logger,
		cfg.Notifications.BroadcastRate,
		cfg.Notifications.BroadcastBurst,
		transports...)

	rt := router.New(pool, q, reg, st, fanout, router.Settings{
		AverageHandleTime:   cfg.Routing.AverageHandleTime,
		InactivityThreshold: cfg.Routing.InactivityThreshold,
		ClosedRetention:     cfg.Routing.ClosedRetention,
	}, logger)

	svc := chat.New(chat.Deps{
		Registry: reg,
		Pool:     pool,
		Queue:    q,
		Router:   rt,
		Typing:   tracker,
		Fanout:   fanout,
		Store:    st,
		Logger:   logger,
	})

	d := &Desk{
		cfg:      cfg,
		logger:   logger.With("component", "desk"),
		store:    st,
		pool:     pool,
		queue:    q,
		registry: reg,
		typing:   tracker,
		hub:      hub,
		fanout:   fanout,
		router:   rt,
		chat:     svc,
	}
	d.cron = d.newScheduler(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/health/ready", d.handleReady)
	d.httpServer = &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return d, nil
}

// Chat returns the operation facade callers route requests through.
func (d *Desk) Chat() *chat.Service {
	return d.chat
}

// Hub returns the in-process event hub for subscribing to notifications.
func (d *Desk) Hub() *notify.Hub {
	return d.hub
}

// Store returns the persistence layer, for read-only callers.
func (d *Desk) Store() store.Store {
	return d.store
}

// EnableConfigWatch turns on hot-reload of the routing tunables from the
// given config file. Must be called before Run.
func (d *Desk) EnableConfigWatch(path string) {
	d.configPath = path
}

// applyConfig installs the live-tunable parts of a reloaded config. The
// addresses, database path, and cron intervals are fixed at startup.
func (d *Desk) applyConfig(cfg *config.Config) {
	d.router.UpdateSettings(router.Settings{
		AverageHandleTime:   cfg.Routing.AverageHandleTime,
		InactivityThreshold: cfg.Routing.InactivityThreshold,
		ClosedRetention:     cfg.Routing.ClosedRetention,
	})
}

// seedAgents upserts the configured roster into the store and registers
// each agent in the pool. Seeded agents start offline; presence comes from
// SetAgentStatus.
func (d *Desk) seedAgents(ctx context.Context) error {
	for _, seed := range d.cfg.Agents.Seed {
		profile := &store.AgentProfile{
			ID:          seed.ID,
			Name:        seed.Name,
			Department:  seed.Department,
			MaxCapacity: seed.MaxCapacity,
		}
		if err := d.store.UpsertAgent(ctx, profile); err != nil {
			return fmt.Errorf("seeding agent %s: %w", seed.ID, err)
		}
		if _, err := d.pool.Register(ctx, seed.ID); err != nil {
			return fmt.Errorf("registering agent %s: %w", seed.ID, err)
		}
	}
	if len(d.cfg.Agents.Seed) > 0 {
		d.logger.Info("seeded agent roster", "agents", len(d.cfg.Agents.Seed))
	}
	return nil
}

// Run starts the desk and blocks until the context is cancelled or the
// HTTP server fails. Startup order: seed roster, rebuild routing state from
// the store, start the cron jobs, then serve.
func (d *Desk) Run(ctx context.Context) error {
	if err := d.seedAgents(ctx); err != nil {
		return err
	}
	if err := d.recoverFromStore(ctx); err != nil {
		return err
	}

	d.cron.Start()

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if d.configPath != "" {
		watcher := config.NewWatcher(d.configPath, d.cfg, d.logger, d.applyConfig)
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				d.logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("health server listening", "addr", d.httpServer.Addr)
		if err := d.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		d.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		d.logger.Error("health server error", "error", serverErr)
	}

	shutdownErr := d.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

func (d *Desk) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return d.Shutdown(ctx)
}

// Shutdown tears the desk down: stop the cron jobs (waiting for in-flight
// passes), stop the HTTP server, then close the typing tracker, the
// notification transports, and finally the store.
func (d *Desk) Shutdown(ctx context.Context) error {
	stopped := d.cron.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		d.logger.Warn("timed out waiting for periodic jobs to finish")
	}

	var firstErr error
	if err := d.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		d.logger.Warn("health server shutdown failed", "error", err)
		firstErr = err
	}

	d.typing.Close()
	d.fanout.Close()

	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	d.logger.Info("desk stopped")
	return firstErr
}

func (d *Desk) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports 200 once the store answers and at least one agent is
// online to take assignments.
func (d *Desk) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if _, err := d.store.ListAgents(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}

	online := d.pool.OnlineCount()
	if online == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no agents online"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agents online, %d waiting)", online, d.queue.Len())
}
