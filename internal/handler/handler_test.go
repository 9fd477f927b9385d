// internal/handler/handler_test.go
package handler

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/config"
	"comm-debugger/internal/protocol"
	"comm-debugger/internal/service"
	"comm-debugger/internal/stats"
	"comm-debugger/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router  *gin.Engine
	session *service.SessionService
	ws      *WebSocketHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zaptest.NewLogger(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}

	dispatcher := protocol.NewDispatcher(64, logger)
	dispatcher.Start()

	session := service.NewSessionService(dispatcher, stats.NewTrafficCounter(), service.NewHistory(50), cfg, logger)
	ws := NewWebSocketHandler(session, []string{"*"}, logger)

	t.Cleanup(func() {
		ws.Close()
		session.Shutdown()
		dispatcher.Stop()
	})

	router := gin.New()
	registerTestRoutes(router, session, cfg, logger, ws)

	return &testEnv{router: router, session: session, ws: ws}
}

func registerTestRoutes(router *gin.Engine, session *service.SessionService, cfg *config.Config, logger *zap.Logger, ws *WebSocketHandler) {
	health := NewHealthHandler(nil, session, cfg, logger)
	channels := NewChannelHandler(session, logger)
	statsHandler := NewStatsHandler(session, logger)
	logHandler := NewLogHandler(session, logger)

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)

	api := router.Group("/api/v1")
	api.GET("/channels", channels.ListChannels)
	api.GET("/channels/:kind", channels.GetChannel)
	api.POST("/channels/:kind/open", channels.OpenChannel)
	api.POST("/channels/:kind/close", channels.CloseChannel)
	api.POST("/channels/:kind/send", channels.SendData)
	api.GET("/channels/:kind/peers", channels.ListPeers)
	api.POST("/channels/:kind/receiver/close", channels.CloseReceiver)
	api.GET("/stats", statsHandler.GetStats)
	api.POST("/stats/reset", statsHandler.ResetStats)
	api.GET("/log", logHandler.GetLog)
	api.DELETE("/log", logHandler.ClearLog)

	ws.RegisterRoutes(router.Group("/ws"))
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp utils.APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("status = %q", health.Status)
	}
	if _, ok := health.Checks["database"]; ok {
		t.Error("database check reported without a database")
	}

	w, _ = env.do(t, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d", w.Code)
	}
}

func TestChannelHandler_UnknownKind(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/api/v1/channels/bluetooth/open", map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp.Success {
		t.Error("success = true")
	}
}

func TestChannelHandler_SendWithoutChannel(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodPost, "/api/v1/channels/udp/send", SendChannelRequest{Data: "hi"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	if resp.Error == nil || resp.Error.Code != "NOT_OPEN" {
		t.Fatalf("error = %+v, want NOT_OPEN", resp.Error)
	}

	// the failure is also logged as an error line
	w, resp = env.do(t, http.MethodGet, "/api/v1/log", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("log status = %d", w.Code)
	}
	data := resp.Data.(map[string]interface{})
	lines := data["lines"].([]interface{})
	if len(lines) != 1 || !strings.Contains(lines[0].(string), "NOT_OPEN") {
		t.Errorf("lines = %v", lines)
	}
}

func TestChannelHandler_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "bad hex", body: SendChannelRequest{Data: "zz", Hex: true}},
		{name: "missing data", body: map[string]interface{}{"hex": false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := env.do(t, http.MethodPost, "/api/v1/channels/serial/send", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestChannelHandler_OpenInvalidConfig(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPost, "/api/v1/channels/tcp/open", map[string]interface{}{
		"role": "client",
		"port": 80,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	if w, _ := env.do(t, http.MethodGet, "/api/v1/channels/tcp", nil); w.Code != http.StatusNotFound {
		t.Errorf("channel after failed open: status = %d, want 404", w.Code)
	}
}

func TestChannelHandler_UDPRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer peer.Close()
	peerPort := peer.LocalAddr().(*net.UDPAddr).Port

	w, _ := env.do(t, http.MethodPost, "/api/v1/channels/udp/open", map[string]interface{}{
		"remote_address": "127.0.0.1",
		"remote_port":    peerPort,
		"local_address":  "127.0.0.1",
		"local_port":     0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("open status = %d, body = %s", w.Code, w.Body.String())
	}

	w, _ = env.do(t, http.MethodPost, "/api/v1/channels/udp/send", SendChannelRequest{Data: "48 65 6C 6C 6F", Hex: true})
	if w.Code != http.StatusOK {
		t.Fatalf("send status = %d, body = %s", w.Code, w.Body.String())
	}

	buf := make([]byte, 64)
	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if got := string(buf[:n]); got != "Hello" {
		t.Errorf("peer received %q, want Hello", got)
	}

	_, resp := env.do(t, http.MethodGet, "/api/v1/stats", nil)
	data := resp.Data.(map[string]interface{})
	if sent := data["bytes_sent"].(float64); sent != 5 {
		t.Errorf("bytes_sent = %v, want 5", sent)
	}

	w, _ = env.do(t, http.MethodPost, "/api/v1/channels/udp/receiver/close", nil)
	if w.Code != http.StatusOK {
		t.Errorf("receiver close status = %d", w.Code)
	}

	w, _ = env.do(t, http.MethodGet, "/api/v1/channels/udp/peers", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("udp peers status = %d, want 400", w.Code)
	}

	_, resp = env.do(t, http.MethodPost, "/api/v1/stats/reset", nil)
	data = resp.Data.(map[string]interface{})
	if sent := data["bytes_sent"].(float64); sent != 0 {
		t.Errorf("bytes_sent after reset = %v", sent)
	}

	if w, _ := env.do(t, http.MethodPost, "/api/v1/channels/udp/close", nil); w.Code != http.StatusOK {
		t.Errorf("close status = %d", w.Code)
	}
	if w, _ := env.do(t, http.MethodPost, "/api/v1/channels/udp/close", nil); w.Code != http.StatusOK {
		t.Errorf("second close status = %d", w.Code)
	}
}

func TestLogHandler_Options(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodGet, "/api/v1/log?encoding=no-such-charset", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	env.do(t, http.MethodPost, "/api/v1/channels/tcp/send", SendChannelRequest{Data: "x"})

	w, resp := env.do(t, http.MethodDelete, "/api/v1/log", nil)
	if w.Code != http.StatusOK || !resp.Success {
		t.Fatalf("clear status = %d", w.Code)
	}

	_, resp = env.do(t, http.MethodGet, "/api/v1/log?hex=true&filter=abc", nil)
	data := resp.Data.(map[string]interface{})
	if count := data["count"].(float64); count != 0 {
		t.Errorf("count after clear = %v", count)
	}
}

func TestParseCaptureFilter(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr []string
	}{
		{name: "empty", query: ""},
		{name: "valid", query: "limit=10&kind=tcp&type=ERROR&channel_id=abc&since=2024-01-02T03:04:05Z"},
		{name: "invalid", query: "limit=-1&kind=x&type=state&since=yesterday", wantErr: []string{"limit", "kind", "type", "since"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/captures?"+tt.query, nil)

			filter, errs := parseCaptureFilter(c)
			if len(errs) != len(tt.wantErr) {
				t.Fatalf("errors = %v, want keys %v", errs, tt.wantErr)
			}
			for _, key := range tt.wantErr {
				if _, ok := errs[key]; !ok {
					t.Errorf("missing error for %q", key)
				}
			}

			if tt.name == "valid" {
				if filter.Limit != 10 || filter.Kind == nil || *filter.Kind != "TCP" {
					t.Errorf("filter = %+v", filter)
				}
				if filter.Type == nil || *filter.Type != "error" {
					t.Errorf("type = %v", filter.Type)
				}
				if filter.ChannelID == nil || *filter.ChannelID != "abc" || filter.Since == nil {
					t.Errorf("filter = %+v", filter)
				}
			}
		})
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "no origin", allowed: []string{"http://a.test"}, origin: "", want: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "http://b.test", want: true},
		{name: "listed", allowed: []string{"http://a.test/"}, origin: "http://a.test", want: true},
		{name: "unlisted", allowed: []string{"http://a.test"}, origin: "http://b.test", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(req); got != tt.want {
				t.Errorf("originChecker() = %v, want %v", got, tt.want)
			}
		})
	}
}
