package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var forecastTool = Tool{
	Name:        "getForecast",
	Description: "Look up the current weather for a location",
	Schema: map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"location": map[string]interface{}{"type": "string"}},
		"required":   []string{},
	},
}

func TestOpenAIProvider_Call(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "getForecast", "arguments": "{\"location\":\"Boston\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider("sk-test", server.URL+"/", 5*time.Second)
	assert.Equal(t, "openai", provider.Provider())

	resp, err := provider.Call(context.Background(), LLMRequest{
		SystemPrompt: "be brief",
		Messages:     []Message{{Role: RoleUser, Content: "weather in Boston"}},
		Tools:        []Tool{forecastTool},
		MaxTokens:    100,
	})
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "getForecast", resp.ToolCalls[0].Name)
	assert.Equal(t, "Boston", resp.ToolCalls[0].Parameters["location"])
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)

	assert.Equal(t, DefaultOpenAIModel, body["model"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	tools := body["tools"].([]interface{})
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]interface{})["function"].(map[string]interface{})
	assert.Equal(t, "getForecast", fn["name"])
}

func TestAnthropicProvider_Call(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "Checking."},
				{"type": "tool_use", "id": "toolu_1", "name": "getForecast", "input": {"location": "Boston"}}
			],
			"stop_reason": "tool_use",
			"stop_sequence": null,
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer server.Close()

	provider := NewAnthropicProvider("sk-ant-test", server.URL+"/", 5*time.Second)
	assert.Equal(t, "anthropic", provider.Provider())

	resp, err := provider.Call(context.Background(), LLMRequest{
		SystemPrompt: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "weather in Boston and Paris"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "a", Name: "getForecast", Parameters: map[string]interface{}{"location": "Boston"}},
				{ID: "b", Name: "getForecast", Parameters: map[string]interface{}{"location": "Paris"}},
			}},
			{Role: RoleTool, ToolCallID: "a", Content: `{"forecast":"54°F"}`},
			{Role: RoleTool, ToolCallID: "b", Content: `{"forecast":"61°F"}`},
		},
		Tools: []Tool{forecastTool},
	})
	require.NoError(t, err)

	assert.Equal(t, "Checking.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "Boston", resp.ToolCalls[0].Parameters["location"])
	assert.Equal(t, 12, resp.InputTokens)

	assert.Equal(t, DefaultAnthropicModel, body["model"])
	messages := body["messages"].([]interface{})
	require.Len(t, messages, 3, "tool results share one user turn")
	last := messages[2].(map[string]interface{})
	assert.Equal(t, "user", last["role"])
	assert.Len(t, last["content"].([]interface{}), 2)
	system := body["system"].([]interface{})
	assert.Equal(t, "be brief", system[0].(map[string]interface{})["text"])
}
