package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	var got sendRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/me/messages", r.URL.Path)
		assert.Equal(t, "EAApage", r.URL.Query().Get("access_token"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"recipient_id":"42","message_id":"m1"}`))
	}))
	defer server.Close()

	client := NewClient("EAApage", server.URL, time.Second, zerolog.Nop())
	require.NoError(t, client.Deliver(context.Background(), "42", "hello there"))

	assert.Equal(t, "RESPONSE", got.MessagingType)
	assert.Equal(t, "42", got.Recipient.ID)
	assert.Equal(t, "hello there", got.Message.Text)
}

func TestDeliverGraphError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"(#100) No matching user found","type":"OAuthException","code":100}}`))
	}))
	defer server.Close()

	err := NewClient("t", server.URL, time.Second, zerolog.Nop()).Deliver(context.Background(), "42", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No matching user found")
	assert.Contains(t, err.Error(), "code 100")
}

func TestDeliverPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	err := NewClient("t", server.URL, time.Second, zerolog.Nop()).Deliver(context.Background(), "42", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestDeliverEmptyRecipient(t *testing.T) {
	err := NewClient("t", "http://unused", time.Second, zerolog.Nop()).Deliver(context.Background(), "", "hi")
	assert.Error(t, err)
}

func TestDeliverSplitsLongText(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		texts = append(texts, req.Message.Text)
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	long := strings.Repeat("word ", 900) // 4500 chars
	require.NoError(t, NewClient("t", server.URL, time.Second, zerolog.Nop()).Deliver(context.Background(), "42", long))

	require.Len(t, texts, 3)
	for _, text := range texts {
		assert.LessOrEqual(t, utf8.RuneCountInString(text), MaxTextLength)
	}
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitText("short", 10))
	assert.Equal(t, []string{"hello", "world"}, SplitText("hello world", 8))
	assert.Equal(t, []string{"abcde", "fghij"}, SplitText("abcdefghij", 5))
	assert.Equal(t, []string{"héllo", "wörld"}, SplitText("héllo wörld", 6))
}

func TestEventKind(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		kind  string
	}{
		{"text", Event{Message: &Message{Text: "hi"}}, "text"},
		{"attachment", Event{Message: &Message{Attachments: []Attachment{{Type: "image"}}}}, "attachment"},
		{"attachment wins over text", Event{Message: &Message{Text: "x", Attachments: []Attachment{{Type: "file"}}}}, "attachment"},
		{"echo", Event{Message: &Message{Text: "hi", IsEcho: true}}, "echo"},
		{"empty", Event{Message: &Message{}}, "empty"},
		{"postback", Event{Postback: &Postback{Payload: "GET_STARTED"}}, "postback"},
		{"delivery", Event{Delivery: json.RawMessage(`{"mids":[]}`)}, "delivery"},
		{"read", Event{Read: json.RawMessage(`{"watermark":1}`)}, "read"},
		{"other", Event{}, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.event.Kind())
		})
	}
}
