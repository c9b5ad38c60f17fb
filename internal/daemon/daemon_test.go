package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/harun/shinimi/internal/config"
	"github.com/harun/shinimi/internal/logger"
	"github.com/harun/shinimi/internal/observability"
	"github.com/harun/shinimi/pkg/corpus"
	"github.com/harun/shinimi/pkg/messenger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	Recipient messenger.User `json:"recipient"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 2
	cfg.Messenger.PageToken = "page-token"
	cfg.Messenger.AppSecret = "app-secret"
	cfg.Messenger.VerifyToken = "verify-token"
	cfg.NLU.Provider = config.ProviderPattern
	cfg.Weather.APIKey = "weather-key"
	cfg.Translate.APIKey = "translate-key"
	cfg.Corpus.Dir = "../../text"
	cfg.Tracing.Enabled = false
	return cfg
}

func createTestDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	d, err := New(cfg, log)
	require.NoError(t, err)
	return d
}

func waitForServer(t *testing.T, cfg *config.Config) {
	t.Helper()
	url := fmt.Sprintf("http://%s/", cfg.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
}

func TestNew(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))

	assert.NotNil(t, d.queue)
	assert.NotNil(t, d.sessions)
	assert.NotNil(t, d.registry)
	assert.NotNil(t, d.runner)
	assert.NotNil(t, d.dispatcher)
	assert.NotNil(t, d.hub)
	assert.NotNil(t, d.eventLoop)
	assert.NotNil(t, d.lifecycle)
	assert.True(t, d.registry.Has("send"))
	assert.True(t, d.registry.Has("getForecast"))
}

func TestNewWithoutEventStream(t *testing.T) {
	cfg := testConfig(t)
	cfg.Events.Enabled = false

	d := createTestDaemon(t, cfg)
	assert.Nil(t, d.hub)
	assert.Nil(t, d.publisher())
}

func TestNewRejectsBadSettings(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	defer log.Close()

	t.Run("unknown nlu provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.NLU.Provider = "eliza"
		_, err := New(cfg, log)
		assert.ErrorContains(t, err, "unsupported nlu provider")
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dedup.Backend = config.DedupRedis
		cfg.Dedup.RedisAddr = fmt.Sprintf("127.0.0.1:%d", freePort(t))
		_, err := New(cfg, log)
		assert.ErrorContains(t, err, "failed to create dedup store")
		assert.Empty(t, observability.AuditLogPath(), "audit log opened before the failure is closed")
	})

	t.Run("missing app secret", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Messenger.AppSecret = ""
		_, err := New(cfg, log)
		assert.ErrorContains(t, err, "app secret is required")
	})
}

func TestDaemonStartStop(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))

	require.NoError(t, d.Start())
	assert.True(t, d.Status().Running)
	assert.Error(t, d.Start())

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)
	assert.Error(t, d.Stop())
}

func TestDaemonStatus(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, d.Start())
	defer d.Stop()

	time.Sleep(20 * time.Millisecond)
	status = d.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.Equal(t, 0, status.Sessions)
}

func TestDaemonRepliesToMessage(t *testing.T) {
	sent := make(chan sentMessage, 4)
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg sentMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err == nil {
			sent <- msg
		}
		_, _ = w.Write([]byte(`{"recipient_id":"user-42","message_id":"m"}`))
	}))
	defer graph.Close()

	cfg := testConfig(t)
	cfg.Messenger.GraphURL = graph.URL

	d := createTestDaemon(t, cfg)
	require.NoError(t, d.Start())
	defer d.Stop()
	waitForServer(t, cfg)

	body := `{"object":"page","entry":[{"id":"p","time":1,"messaging":[` +
		`{"sender":{"id":"user-42"},"recipient":{"id":"p"},"timestamp":1,"message":{"mid":"mid.1","text":"hello"}}]}]}`
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/webhook", cfg.Addr()), strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(messenger.HeaderSignature256, messenger.Sign(cfg.Messenger.AppSecret, []byte(body)))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	greetings, err := corpus.New(cfg.Corpus.Dir).Lines(corpus.Greetings)
	require.NoError(t, err)

	select {
	case msg := <-sent:
		assert.Equal(t, "user-42", msg.Recipient.ID)
		assert.Contains(t, greetings, msg.Message.Text)
	case <-time.After(3 * time.Second):
		t.Fatal("no reply delivered")
	}

	assert.Equal(t, 1, d.Status().Sessions)
}

func TestDaemonRunStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)
	d := createTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitForServer(t, cfg)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, d.Status().Running)
}

func TestDaemonRunReportsListenFailure(t *testing.T) {
	cfg := testConfig(t)
	l, err := net.Listen("tcp", cfg.Addr())
	require.NoError(t, err)
	defer l.Close()

	d := createTestDaemon(t, cfg)

	select {
	case err := <-runAsync(d):
		assert.ErrorContains(t, err, "failed to start webhook server")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func runAsync(d *Daemon) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	return done
}

func TestApplyConfig(t *testing.T) {
	cfg := testConfig(t)
	d := createTestDaemon(t, cfg)

	next := *cfg
	next.Logging.Level = "debug"
	d.ApplyConfig(&next)
	assert.Equal(t, "debug", d.GetConfig().Logging.Level)
	assert.Equal(t, zerolog.DebugLevel, d.GetLogger().Level())

	bad := *cfg
	bad.Logging.Level = "chatty"
	d.ApplyConfig(&bad)
	assert.Equal(t, "debug", d.GetConfig().Logging.Level)
}

func TestDaemonGetters(t *testing.T) {
	d := createTestDaemon(t, testConfig(t))

	assert.NotNil(t, d.GetConfig())
	assert.NotNil(t, d.GetLogger())
	assert.NotNil(t, d.GetQueue())
	assert.NotNil(t, d.GetSessionStore())
	assert.NotNil(t, d.GetRegistry())
	assert.NotNil(t, d.GetWebhookServer())
}
