package nlu

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/shinimi/internal/tracing"
	"github.com/harun/shinimi/pkg/actions"
	"github.com/harun/shinimi/pkg/conversation"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const systemPrompt = `You are Shinimi, a friendly chat bot on Facebook Messenger.
Use the tools to greet people, tell jokes, look up the weather, tell the local time and translate phrases.
Each tool returns the updated conversation state as JSON. Base your reply on the keys it wrote.
If a tool reports a missing value (for example missingLocation or missingTimeZone), ask the user for it.
Answer in one or two short sentences of plain text.`

// LLMRunner lets a tool-calling model choose the actions. Every transformer
// action is offered as a tool; the model's final text is delivered through
// the send action.
type LLMRunner struct {
	provider  Provider
	model     string
	maxSteps  int
	maxTokens int
	exec      Executor
	logger    zerolog.Logger
}

// NewLLMRunner creates a model-backed engine.
func NewLLMRunner(provider Provider, opts Options, exec Executor, logger zerolog.Logger) *LLMRunner {
	return &LLMRunner{
		provider:  provider,
		model:     opts.Model,
		maxSteps:  opts.MaxSteps,
		maxTokens: opts.MaxTokens,
		exec:      exec,
		logger:    logger.With().Str("component", "nlu").Str("engine", provider.Provider()).Logger(),
	}
}

// RunActions implements Runner.
func (r *LLMRunner) RunActions(ctx context.Context, sessionID, text string, c conversation.Context) (conversation.Context, error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerNLU, "nlu.llm.run",
		attribute.String("session_id", sessionID),
		attribute.String("provider", r.provider.Provider()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	current := c.Clone()
	tools := r.tools()
	messages := []Message{{Role: RoleUser, Content: text}}
	steps := Steps{Max: r.maxSteps}

	for {
		if err := steps.Next(); err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}

		resp, err := r.provider.Call(ctx, LLMRequest{
			Model:        r.model,
			SystemPrompt: systemPrompt + "\n\nCurrent conversation state: " + current.JSON(),
			Messages:     messages,
			Tools:        tools,
			MaxTokens:    r.maxTokens,
		})
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		logger.Debug().
			Int("step", steps.Taken()).
			Int("tool_calls", len(resp.ToolCalls)).
			Int("input_tokens", resp.InputTokens).
			Int("output_tokens", resp.OutputTokens).
			Msg("Model step")

		if len(resp.ToolCalls) == 0 {
			reply := strings.TrimSpace(resp.Content)
			if reply != "" {
				res, err := r.exec.Execute(ctx, "send", actions.Request{SessionID: sessionID, Context: current, Text: reply})
				if err != nil {
					tracing.RecordError(span, err)
					return nil, fmt.Errorf("failed to send message: %w", err)
				}
				current = res.Context
			}
			span.SetAttributes(attribute.Int("steps", steps.Taken()))
			return current, nil
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			output, next := r.runTool(ctx, sessionID, call, current)
			current = next
			messages = append(messages, Message{Role: RoleTool, ToolCallID: call.ID, Content: output})
		}
	}
}

// runTool executes one tool call. Failures are reported back to the model
// rather than ending the run.
func (r *LLMRunner) runTool(ctx context.Context, sessionID string, call ToolCall, current conversation.Context) (string, conversation.Context) {
	entities, err := toolEntities(call.Parameters)
	if err != nil {
		return "error: " + err.Error(), current
	}
	res, err := r.exec.Execute(ctx, call.Name, actions.Request{SessionID: sessionID, Context: current, Entities: entities})
	if err != nil {
		return "error: " + err.Error(), current
	}
	return res.Context.JSON(), res.Context
}

func (r *LLMRunner) tools() []Tool {
	var tools []Tool
	for _, def := range r.exec.Definitions() {
		if def.Kind == actions.KindSender {
			continue
		}
		// entities stay optional so actions can flag missing slots
		properties := map[string]interface{}{}
		for _, entity := range def.Entities {
			properties[entity] = map[string]interface{}{"type": "string"}
		}
		tools = append(tools, Tool{
			Name:        def.Name,
			Description: def.Description,
			Schema: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   []string{},
			},
		})
	}
	return tools
}

// toolEntities turns tool arguments into single-candidate entities. Empty
// arguments are dropped so that actions see them as missing.
func toolEntities(params map[string]interface{}) (conversation.Entities, error) {
	var values map[string]string
	config := &mapstructure.DecoderConfig{WeaklyTypedInput: true, Result: &values}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(params); err != nil {
		return nil, fmt.Errorf("failed to decode tool arguments: %w", err)
	}

	entities := make(conversation.Entities, len(values))
	for name, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		entities[name] = []conversation.Candidate{{Value: v}}
	}
	return entities, nil
}
