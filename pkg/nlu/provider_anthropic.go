package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider. baseURL and timeout are
// optional.
func NewAnthropicProvider(apiKey, baseURL string, timeout time.Duration) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...)}
}

// Provider implements Provider.
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Call implements Provider.
func (p *AnthropicProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(request.Messages))
	for i := 0; i < len(request.Messages); i++ {
		msg := request.Messages[i]
		switch msg.Role {
		case RoleTool:
			// consecutive tool results go back in a single user turn
			blocks := []anthropic.ContentBlockParamUnion{anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)}
			for i+1 < len(request.Messages) && request.Messages[i+1].Role == RoleTool {
				i++
				next := request.Messages[i]
				blocks = append(blocks, anthropic.NewToolResultBlock(next.ToolCallID, next.Content, false))
			}
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		case RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Parameters, tc.Name))
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	model := request.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if request.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: request.SystemPrompt}}
	}

	if len(request.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(request.Tools))
		for _, tool := range request.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Schema["properties"],
				},
			}
			if required, ok := tool.Schema["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to call anthropic: %w", err)
	}

	out := &LLMResponse{
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += b.Text
		case anthropic.ToolUseBlock:
			var input map[string]interface{}
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &input); err != nil {
				return nil, fmt.Errorf("failed to parse tool input: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Parameters: input})
		}
	}
	return out, nil
}
