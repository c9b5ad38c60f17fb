package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultWitURL is the Wit.ai API base.
	DefaultWitURL = "https://api.wit.ai"
	// WitAPIVersion pins the converse response format.
	WitAPIVersion = "20160526"
)

// Wit converse step types.
const (
	witTypeMessage = "msg"
	witTypeAction  = "action"
	witTypeMerge   = "merge"
	witTypeStop    = "stop"
)

type witStep struct {
	Type       string                 `json:"type"`
	Msg        string                 `json:"msg,omitempty"`
	Action     string                 `json:"action,omitempty"`
	Entities   map[string]interface{} `json:"entities,omitempty"`
	Confidence float64                `json:"confidence,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// WitRunner drives the Wit.ai converse loop. Each round trip asks Wit for the
// next step given the current Context: "msg" goes through the send action,
// "action" runs the named action, "stop" ends the run.
type WitRunner struct {
	token      string
	baseURL    string
	maxSteps   int
	httpClient *http.Client
	exec       Executor
	logger     zerolog.Logger
}

// NewWitRunner creates a Wit.ai engine.
func NewWitRunner(opts Options, exec Executor, logger zerolog.Logger) *WitRunner {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultWitURL
	}
	client := &http.Client{}
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	}
	return &WitRunner{
		token:      opts.Token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxSteps:   opts.MaxSteps,
		httpClient: client,
		exec:       exec,
		logger:     logger.With().Str("component", "nlu").Str("engine", "wit").Logger(),
	}
}

// RunActions implements Runner.
func (w *WitRunner) RunActions(ctx context.Context, sessionID, text string, c conversation.Context) (conversation.Context, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerNLU, "nlu.wit.run", attribute.String("session_id", sessionID))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, w.logger)

	current := c.Clone()
	steps := Steps{Max: w.maxSteps}
	query := text

	for {
		if err := steps.Next(); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}

		step, err := w.converse(ctx, sessionID, query, current)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		query = ""
		logger.Debug().Str("type", step.Type).Str("action", step.Action).Int("step", steps.Taken()).Msg("Wit step")

		switch step.Type {
		case witTypeStop:
			span.SetAttributes(attribute.Int("steps", steps.Taken()))
			return current, nil

		case witTypeMessage:
			res, err := w.exec.Execute(ctx, "send", actions.Request{SessionID: sessionID, Context: current, Text: step.Msg})
			if err != nil {
				tracing.RecordError(span, err)
				return nil, fmt.Errorf("failed to send message: %w", err)
			}
			current = res.Context

		case witTypeAction:
			entities, err := conversation.DecodeEntities(step.Entities)
			if err != nil {
				tracing.RecordError(span, err)
				return nil, err
			}
			res, err := w.exec.Execute(ctx, step.Action, actions.Request{SessionID: sessionID, Context: current, Entities: entities})
			if err != nil {
				tracing.RecordError(span, err)
				return nil, fmt.Errorf("failed to run action %s: %w", step.Action, err)
			}
			current = res.Context

		case witTypeMerge:
			// merge was folded into actions upstream; nothing to do

		default:
			err := fmt.Errorf("unknown wit step type %q", step.Type)
			tracing.RecordError(span, err)
			return nil, err
		}
	}
}

func (w *WitRunner) converse(ctx context.Context, sessionID, query string, c conversation.Context) (*witStep, error) {
	params := url.Values{
		"v":          {WitAPIVersion},
		"session_id": {sessionID},
	}
	if query != "" {
		params.Set("q", query)
	}

	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/converse?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.token)
	req.Header.Set("Accept", "application/vnd.wit."+WitAPIVersion+"+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call wit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read wit response: %w", err)
	}

	var step witStep
	if err := json.Unmarshal(raw, &step); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("wit error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("failed to decode wit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || step.Error != "" {
		return nil, fmt.Errorf("wit error (status %d): %s", resp.StatusCode, step.Error)
	}
	return &step, nil
}
