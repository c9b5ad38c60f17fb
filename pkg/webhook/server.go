package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/dispatch"
	"github.com/harun/shinimi/pkg/messenger"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Banner is served on GET /
const Banner = "Hello, I'm a chat bot"

// Acknowledgement is the body of every accepted POST /webhook
const Acknowledgement = "EVENT_RECEIVED"

// maxBodyBytes bounds a webhook payload
const maxBodyBytes = 1 << 20

// Dispatcher handles one inbound message
type Dispatcher interface {
	Dispatch(ctx context.Context, msg dispatch.Inbound) (dispatch.Outcome, error)
}

// ServerOptions configures the webhook server
type ServerOptions struct {
	Host            string
	Port            int
	AppSecret       string
	VerifyToken     string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server is the Messenger webhook HTTP server
type Server struct {
	options        ServerOptions
	server         *http.Server
	router         chi.Router
	dispatcher     Dispatcher
	events         http.Handler
	validator      *PayloadValidator
	metricsTracker *MetricsTracker
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlight       sync.WaitGroup
}

// NewServer creates a webhook server. events may be nil to disable the
// operator event stream.
func NewServer(options ServerOptions, dispatcher Dispatcher, events http.Handler, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 5000
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ReadTimeout == 0 {
		options.ReadTimeout = 10 * time.Second
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 15 * time.Second
	}

	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if options.AppSecret == "" {
		return nil, fmt.Errorf("app secret is required")
	}
	if options.VerifyToken == "" {
		return nil, fmt.Errorf("verify token is required")
	}

	validator, err := NewPayloadValidator()
	if err != nil {
		return nil, err
	}

	observability.EnsureRegistered()

	s := &Server{
		options:        options,
		dispatcher:     dispatcher,
		events:         events,
		validator:      validator,
		metricsTracker: NewMetricsTracker(),
		logger:         logger.With().Str("component", "webhook").Logger(),
		startTime:      time.Now(),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: options.ReadTimeout,
		ReadTimeout:       options.ReadTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/", s.handleBanner)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleWebhook)
	if s.events != nil {
		r.Method(http.MethodGet, "/events", s.events)
	}
	return r
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.options.Host, s.options.Port)
}

// Start listens and serves until Stop is called. Starting after Stop
// returns immediately.
func (s *Server) Start() error {
	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start webhook server: %w", err)
	}
	return nil
}

// Stop refuses new webhook deliveries, shuts the listener down and waits for
// dispatches that were already acknowledged.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down webhook server")

	ctx, cancel := context.WithTimeout(ctx, s.options.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown webhook server: %w", err)
	}

	if err := s.Wait(ctx); err != nil {
		s.logger.Warn().Msg("Shutdown timeout reached with dispatches still running")
		return err
	}

	s.logger.Info().Msg("Webhook server stopped")
	return nil
}

// Wait blocks until every acknowledged payload has been dispatched
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain webhook dispatches: %w", ctx.Err())
	}
}

// Metrics returns per-route request statistics
func (s *Server) Metrics() []RouteMetrics {
	return s.metricsTracker.GetMetrics()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.metricsTracker.Track(route, r.Method, status, time.Since(start))

		s.logger.Info().Msgf("%d %s %s", status, r.Method, r.URL.RequestURI())
	})
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, Banner)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"routes":    s.metricsTracker.GetMetrics(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}

// handleVerify answers the subscription handshake
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if query.Get("hub.mode") != "subscribe" || query.Get("hub.verify_token") != s.options.VerifyToken {
		observability.RecordWebhookRejected("verify_token")
		observability.AuditWebhookGate(r.Context(), observability.GateEntry{
			Check:  observability.CheckSubscribe,
			Remote: r.RemoteAddr,
			Reason: "mode=" + query.Get("hub.mode"),
		})
		s.logger.Warn().Str("mode", query.Get("hub.mode")).Msg("Webhook verification failed")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	observability.AuditWebhookGate(r.Context(), observability.GateEntry{
		Check:   observability.CheckSubscribe,
		Allowed: true,
		Remote:  r.RemoteAddr,
	})
	s.logger.Info().Msg("Webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, query.Get("hub.challenge"))
}

// handleWebhook accepts a page payload and dispatches its messages after
// acknowledging. Nothing downstream can change the response once the payload
// is structurally valid.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.inFlight.Add(1)
	s.shutdownMu.RUnlock()

	handedOff := false
	defer func() {
		if !handedOff {
			s.inFlight.Done()
		}
	}()

	ctx := tracing.NewRequestContext(r.Context())
	ctx, span := tracing.StartSpan(ctx, tracing.TracerWebhook, "webhook.receive")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		tracing.RecordError(span, err)
		observability.RecordWebhookRejected("body")
		logger.Error().Err(err).Msg("Failed to read request body")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := messenger.VerifySignature(
		s.options.AppSecret,
		rawBody,
		r.Header.Get(messenger.HeaderSignature256),
		r.Header.Get(messenger.HeaderSignature),
	); err != nil {
		tracing.RecordError(span, err)
		status := http.StatusForbidden
		reason := "signature_invalid"
		if errors.Is(err, messenger.ErrMissingSignature) {
			status = http.StatusUnauthorized
			reason = "signature_missing"
		}
		observability.RecordWebhookRejected(reason)
		observability.AuditWebhookGate(ctx, observability.GateEntry{
			Check:  observability.CheckSignature,
			Remote: r.RemoteAddr,
			Reason: reason,
		})
		logger.Warn().Err(err).Msg("Webhook signature rejected")
		http.Error(w, http.StatusText(status), status)
		return
	}

	if err := s.validator.Validate(rawBody); err != nil {
		tracing.RecordError(span, err)
		observability.RecordWebhookRejected("schema")
		logger.Warn().Err(err).Msg("Webhook payload rejected")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var payload messenger.Payload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		tracing.RecordError(span, err)
		observability.RecordWebhookRejected("decode")
		logger.Warn().Err(err).Msg("Failed to decode webhook payload")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if payload.Object != messenger.ObjectPage {
		observability.RecordWebhookRejected("object")
		logger.Warn().Str("object", payload.Object).Msg("Ignoring non-page webhook")
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	inbound := s.collect(ctx, payload)
	span.SetAttributes(attribute.Int("messages", len(inbound)))

	if len(inbound) > 0 {
		handedOff = true
		go s.dispatchAll(tracing.Detach(ctx), inbound)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, Acknowledgement)
}

// collect turns messaging events into dispatcher input, logging the rest
func (s *Server) collect(ctx context.Context, payload messenger.Payload) []dispatch.Inbound {
	logger := tracing.LoggerFromContext(ctx, s.logger)

	var inbound []dispatch.Inbound
	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			kind := event.Kind()
			observability.RecordWebhookEvent(kind)

			switch kind {
			case "text", "attachment", "empty":
				inbound = append(inbound, dispatch.Inbound{
					SenderID:       event.Sender.ID,
					MessageID:      event.Message.MID,
					Text:           event.Message.Text,
					HasAttachments: event.Message.HasAttachments(),
				})
			default:
				raw, _ := json.Marshal(event)
				logger.Debug().
					Str("kind", kind).
					Str("sender_id", event.Sender.ID).
					RawJSON("event", raw).
					Msg("Received event")
			}
		}
	}
	return inbound
}

// dispatchAll runs the messages of one payload in delivery order
func (s *Server) dispatchAll(ctx context.Context, inbound []dispatch.Inbound) {
	defer s.inFlight.Done()

	// Each sender keeps its own order; different senders do not wait on each other.
	var order []string
	bySender := make(map[string][]dispatch.Inbound)
	for _, msg := range inbound {
		if _, ok := bySender[msg.SenderID]; !ok {
			order = append(order, msg.SenderID)
		}
		bySender[msg.SenderID] = append(bySender[msg.SenderID], msg)
	}

	var wg sync.WaitGroup
	for _, sender := range order {
		wg.Add(1)
		go func(msgs []dispatch.Inbound) {
			defer wg.Done()
			s.dispatchSender(ctx, msgs)
		}(bySender[sender])
	}
	wg.Wait()
}

func (s *Server) dispatchSender(ctx context.Context, msgs []dispatch.Inbound) {
	for _, msg := range msgs {
		// Failures are logged by the dispatcher.
		outcome, err := s.dispatcher.Dispatch(ctx, msg)
		if err == nil && outcome == dispatch.OutcomeProcessed {
			s.logger.Debug().Str("sender_id", msg.SenderID).Msg("Waiting for next user messages")
		}
	}
}
