package translate

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

func TestTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/language/translate/v2", r.URL.Path)
		assert.Equal(t, "gkey", r.URL.Query().Get("key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "good morning", body["q"])
		assert.Equal(t, "fr", body["target"])
		assert.Equal(t, "text", body["format"])

		_, _ = w.Write([]byte(`{"data":{"translations":[{"translatedText":"bonjour l&#39;ami","detectedSourceLanguage":"en"}]}}`))
	}))
	defer server.Close()

	res, err := NewClient("gkey", server.URL, time.Second).Translate(context.Background(), "good morning", "fr")
	require.NoError(t, err)
	assert.Equal(t, "bonjour l'ami", res.Text)
	assert.Equal(t, "en", res.SourceLanguage)
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"api error", http.StatusBadRequest, `{"error":{"code":400,"message":"Invalid Value"}}`, "Invalid Value"},
		{"plain error", http.StatusForbidden, `forbidden`, "status 403"},
		{"empty result", http.StatusOK, `{"data":{"translations":[]}}`, "no translations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewClient("k", server.URL, time.Second).Translate(context.Background(), "hi", "es")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTranslateValidatesInput(t *testing.T) {
	c := NewClient("k", "", time.Second)

	_, err := c.Translate(context.Background(), "", "fr")
	assert.Error(t, err)
	_, err = c.Translate(context.Background(), "hi", " ")
	assert.Error(t, err)
}
