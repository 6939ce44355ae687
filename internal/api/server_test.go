package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/emitter"
	"github.com/zxsharp/active-app-worker/internal/metrics"
	"github.com/zxsharp/active-app-worker/internal/watcher"
)

type fakeBackend struct {
	sample *config.Sample
	err    error
}

func (f *fakeBackend) Connect() error { return nil }
func (f *fakeBackend) Close() error   { return nil }
func (f *fakeBackend) Name() string   { return "fake" }

func (f *fakeBackend) Sample() (*config.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.sample
	return &s, nil
}

func (f *fakeBackend) ResolveClass(windowID uint32) (string, error) {
	return "", errors.New("no class data")
}

func newTestServer(t *testing.T, backend *fakeBackend) (*Server, *watcher.Watcher) {
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(collector.Close)

	cfg := &config.Config{
		PollMS:     10,
		DebounceMS: 1,
		ServerHost: "localhost",
		ServerPort: 3000,
		ServerPath: "/app-switch",
		Backend:    "stub",
		LogLevel:   "info",
	}
	client := emitter.NewClient(collector.URL, time.Second)
	src := emitter.Source{WatcherID: "w-api", HostID: "api-host"}
	w := watcher.New(cfg, backend, client, src, metrics.New())

	configMgr, err := config.NewManager("/nonexistent/config.yaml")
	require.NoError(t, err)

	return NewServer(w, configMgr), w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{sample: &config.Sample{Title: "x"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "fake", body["backend"])
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{sample: &config.Sample{Title: "x"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st watcher.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "fake", st.Backend)
	assert.Equal(t, "w-api", st.Source.WatcherID)
}

func TestSampleEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Docs"}}
		s, _ := newTestServer(t, backend)
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sample")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Sample config.Sample `json:"sample"`
			Result struct {
				App    string `json:"app"`
				Reason string `json:"reason"`
			} `json:"result"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "firefox", body.Sample.OwnerName)
		assert.Equal(t, "Firefox", body.Result.App)
		assert.Equal(t, "owner-map", body.Result.Reason)
	})

	t.Run("backend failure", func(t *testing.T) {
		s, _ := newTestServer(t, &fakeBackend{err: errors.New("no display")})
		srv := httptest.NewServer(s.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/sample")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestConfigEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{sample: &config.Sample{Title: "x"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg config.Config
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, config.DefaultPollMS, cfg.PollMS)
	assert.Equal(t, config.DefaultServerPath, cfg.ServerPath)
}

func TestRulesEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{sample: &config.Sample{Title: "x"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/rules")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		OwnerMap map[string]string `json:"owner_map"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Firefox", body.OwnerMap["firefox"])
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{sample: &config.Sample{Title: "x"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "appwatch_ticks_total")
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &fakeBackend{sample: &config.Sample{Title: "x"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/status", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestEventStream(t *testing.T) {
	backend := &fakeBackend{sample: &config.Sample{OwnerName: "firefox", Title: "Docs", PID: 3}}
	s, w := newTestServer(t, backend)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev emitter.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "appSwitch", ev.Event)
	assert.Equal(t, "Firefox", ev.Next.App)
}
