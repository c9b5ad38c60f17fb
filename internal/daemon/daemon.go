package daemon

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/shinimi/internal/config"
	"github.com/harun/shinimi/internal/logger"
	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/clock"
	"github.com/harun/shinimi/pkg/commandqueue"
	"github.com/harun/shinimi/pkg/corpus"
	"github.com/harun/shinimi/pkg/dedup"
	"github.com/harun/shinimi/pkg/dispatch"
	"github.com/harun/shinimi/pkg/events"
	"github.com/harun/shinimi/pkg/messenger"
	"github.com/harun/shinimi/pkg/nlu"
	"github.com/harun/shinimi/pkg/session"
	"github.com/harun/shinimi/pkg/translate"
	"github.com/harun/shinimi/pkg/weather"
	"github.com/harun/shinimi/pkg/webhook"
)

// laneWarnAfter is how long a message may wait behind its session's earlier
// messages before the queue logs a warning
const laneWarnAfter = 10 * time.Second

// Version is the release reported by the CLI and in trace resources.
const Version = "0.1.0"

// Daemon represents the Shinimi bot service
type Daemon struct {
	config *config.Config
	logger *logger.Logger

	// Core modules
	corpus     *corpus.Corpus
	registry   *actions.Registry
	runner     nlu.Runner
	sessions   *session.Store
	sweeper    *session.Sweeper
	queue      *commandqueue.CommandQueue
	dedup      dedup.Store
	hub        *events.Hub
	messenger  *messenger.Client
	dispatcher *dispatch.Dispatcher

	// Services
	webhookServer *webhook.Server

	// Internal
	eventLoop *EventLoop
	lifecycle *LifecycleManager

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	serveErr chan error

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes a running daemon
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
	Sessions  int
	Lanes     int
}

// New creates a new daemon instance
func New(cfg *config.Config, log *logger.Logger) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	observability.EnsureRegistered()

	d := &Daemon{
		config:   cfg,
		logger:   log,
		ctx:      ctx,
		cancel:   cancel,
		serveErr: make(chan error, 1),
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(tracing.Options{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: Version,
			SampleRatio:    cfg.Tracing.SampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			log.Info().Msg("Tracing initialized successfully")
		}
	}

	if err := d.initializeCoreModules(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	if err := d.initializeServices(); err != nil {
		d.abort()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.eventLoop = NewEventLoop(d)
	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

func (d *Daemon) abort() {
	d.cancel()
	if d.hub != nil {
		d.hub.Close()
	}
	if d.queue != nil {
		_ = d.queue.Close(context.Background())
	}
	if d.dedup != nil {
		_ = d.dedup.Close()
	}
	if err := observability.CloseAuditLog(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close audit log")
	}
	if d.tracingEnabled {
		_ = tracing.ShutdownOpenTelemetry(context.Background())
		d.tracingEnabled = false
	}
}

// initializeCoreModules builds everything that sits behind the webhook
func (d *Daemon) initializeCoreModules() error {
	cfg := d.config
	zl := d.logger.GetZerolog()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	auditPath := filepath.Join(cfg.DataDir, "audit.log")
	if err := observability.OpenAuditLog(auditPath); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
	} else {
		d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
	}

	d.corpus = corpus.New(cfg.Corpus.Dir)
	d.logger.Info().Str("dir", cfg.Corpus.Dir).Msg("Corpus initialized")

	d.sessions = session.NewStore(session.WithLogger(zl))
	d.sweeper = session.NewSweeper(d.sessions, config.Seconds(cfg.Session.IdleTTL), config.Seconds(cfg.Session.SweepInterval), zl)
	d.logger.Info().Int("idle_ttl", cfg.Session.IdleTTL).Msg("Session store initialized")

	d.queue = commandqueue.New(zl)
	d.logger.Info().Msg("Command queue initialized")

	store, err := dedup.New(d.ctx, dedup.Options{
		Backend:       cfg.Dedup.Backend,
		TTL:           config.Seconds(cfg.Dedup.TTL),
		RedisAddr:     cfg.Dedup.RedisAddr,
		RedisPassword: cfg.Dedup.RedisPassword,
		RedisDB:       cfg.Dedup.RedisDB,
		Prefix:        cfg.Dedup.Prefix,
	})
	if err != nil {
		return fmt.Errorf("failed to create dedup store: %w", err)
	}
	d.dedup = store
	d.logger.Info().Str("backend", cfg.Dedup.Backend).Msg("Dedup store initialized")

	if cfg.Events.Enabled {
		d.hub = events.NewHub(zl)
		d.logger.Info().Msg("Event hub initialized")
	}

	d.messenger = messenger.NewClient(cfg.Messenger.PageToken, cfg.Messenger.GraphURL, config.Seconds(cfg.Messenger.Timeout), zl)
	deliverer := dispatch.NewPublishingDeliverer(d.messenger, d.publisher())

	d.registry = actions.NewRegistry(zl)
	if err := actions.RegisterBuiltins(d.registry, actions.Dependencies{
		Corpus:     d.corpus,
		Languages:  d.corpus,
		Weather:    weather.NewClient(cfg.Weather.APIKey, cfg.Weather.BaseURL, config.Seconds(cfg.Weather.Timeout), weather.WithUnits(cfg.Weather.Units)),
		Clock:      clock.NewResolver(),
		Translator: translate.NewClient(cfg.Translate.APIKey, cfg.Translate.BaseURL, config.Seconds(cfg.Translate.Timeout)),
		Deliverer:  deliverer,
		Sessions:   d.sessions,
		Logger:     zl,
	}); err != nil {
		return fmt.Errorf("failed to register actions: %w", err)
	}
	if d.hub != nil {
		d.registry.Observe(d.publishExecution)
	}
	d.logger.Info().Int("actions", len(d.registry.Definitions())).Msg("Action registry initialized")

	runner, err := nlu.New(nlu.Options{
		Provider:  cfg.NLU.Provider,
		Token:     cfg.NLU.Token,
		Model:     cfg.NLU.Model,
		BaseURL:   cfg.NLU.BaseURL,
		MaxSteps:  cfg.NLU.MaxSteps,
		MaxTokens: cfg.NLU.MaxTokens,
		Timeout:   config.Seconds(cfg.NLU.Timeout),
	}, d.registry, zl)
	if err != nil {
		return fmt.Errorf("failed to create nlu runner: %w", err)
	}
	d.runner = runner
	d.logger.Info().Str("provider", cfg.NLU.Provider).Msg("NLU runner initialized")

	dispatcher, err := dispatch.New(dispatch.Config{
		Sessions:      d.sessions,
		Runner:        d.runner,
		Deliverer:     deliverer,
		Lanes:         d.queue,
		Dedup:         d.dedup,
		Publisher:     d.publisher(),
		LaneWarnAfter: laneWarnAfter,
		Logger:        zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}
	d.dispatcher = dispatcher

	return nil
}

// initializeServices builds the HTTP surface
func (d *Daemon) initializeServices() error {
	cfg := d.config

	var stream http.Handler
	if d.hub != nil {
		stream = d.hub
	}

	server, err := webhook.NewServer(webhook.ServerOptions{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AppSecret:       cfg.Messenger.AppSecret,
		VerifyToken:     cfg.Messenger.VerifyToken,
		ReadTimeout:     config.Seconds(cfg.Server.ReadTimeout),
		ShutdownTimeout: config.Seconds(cfg.Server.ShutdownTimeout),
	}, d.dispatcher, stream, d.logger.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}
	d.webhookServer = server
	d.logger.Info().Str("addr", server.Addr()).Msg("Webhook server initialized")

	return nil
}

// publisher returns the hub as a dispatch.Publisher, or nil when the event
// stream is disabled
func (d *Daemon) publisher() dispatch.Publisher {
	if d.hub == nil {
		return nil
	}
	return d.hub
}

func (d *Daemon) publishExecution(exec actions.Execution) {
	data := map[string]interface{}{
		"action":      exec.Name,
		"kind":        string(exec.Kind),
		"session_id":  exec.SessionID,
		"duration_ms": exec.Duration.Milliseconds(),
		"success":     exec.Err == nil,
	}
	if exec.Err != nil {
		data["error"] = exec.Err.Error()
	}
	d.hub.Publish(events.EventActionExecuted, data)
}

// Start starts all services
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Starting Shinimi daemon")

	if err := d.lifecycle.Start(); err != nil {
		d.setStopped()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.sweeper.Start(); err != nil {
		d.setStopped()
		_ = d.lifecycle.Stop()
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}
	logger.Info().Msg("Session sweeper started")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.webhookServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Webhook server failed")
			d.serveErr <- err
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.eventLoop.Run(d.ctx)
	}()

	logger.Info().Str("addr", d.webhookServer.Addr()).Msg("Daemon started successfully")
	return nil
}

func (d *Daemon) setStopped() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
}

// Stop shuts services down in reverse dependency order: the webhook stops
// accepting and drains acknowledged messages before the queue closes.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	logger := d.logger.GetZerolog().With().Str("trace_id", traceID).Logger()
	logger.Info().Msg("Stopping Shinimi daemon")

	shutdownTimeout := config.Seconds(d.config.Server.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	if err := d.webhookServer.Stop(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to stop webhook server")
	}

	queueCtx, queueCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	if err := d.queue.Close(queueCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close command queue")
	}
	queueCancel()
	logger.Info().Msg("Command queue stopped")

	d.sweeper.Stop()

	if d.hub != nil {
		d.hub.Close()
	}

	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("All goroutines stopped")
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("Timeout waiting for goroutines to stop")
	}

	if err := d.dedup.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close dedup store")
	}

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if err := observability.CloseAuditLog(); err != nil {
		logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	logger.Info().Msg("Daemon stopped successfully")
	return nil
}

// Run starts the daemon and blocks until ctx is done, SIGINT/SIGTERM arrives
// or the webhook server fails, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info().Msg("Context cancelled")
	case sig := <-sigCh:
		d.logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case runErr = <-d.serveErr:
	}

	if err := d.Stop(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// ApplyConfig applies the settings that can change without a restart
func (d *Daemon) ApplyConfig(cfg *config.Config) {
	if cfg.Logging.Level != d.config.Logging.Level {
		if err := d.logger.SetLevel(cfg.Logging.Level); err != nil {
			d.logger.Warn().Err(err).Str("level", cfg.Logging.Level).Msg("Ignoring invalid log level")
			return
		}
		d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level updated")
	}

	d.mu.Lock()
	d.config.Logging.Level = cfg.Logging.Level
	d.mu.Unlock()
}

// Status returns the current daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running:  d.running,
		Sessions: d.sessions.Len(),
		Lanes:    d.queue.LaneCount(),
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetQueue returns the command queue
func (d *Daemon) GetQueue() *commandqueue.CommandQueue {
	return d.queue
}

// GetSessionStore returns the session store
func (d *Daemon) GetSessionStore() *session.Store {
	return d.sessions
}

// GetRegistry returns the action registry
func (d *Daemon) GetRegistry() *actions.Registry {
	return d.registry
}

// GetWebhookServer returns the webhook server
func (d *Daemon) GetWebhookServer() *webhook.Server {
	return d.webhookServer
}
