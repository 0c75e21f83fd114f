package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/whalespump/live-support/pkg/config"
	"github.com/whalespump/live-support/pkg/metrics"
	"go.uber.org/zap"
)

func testRouter(t *testing.T, telegramURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		TelegramBotToken: "token",
		TelegramAPIURL:   telegramURL,
		TelegramMode:     config.ModeRedirect,
		WebAppURL:        "https://support.example",
	}
	m := metrics.NewMetrics("")
	webhook, err := newWebhook(t.Context(), cfg, m, zap.NewNop())
	require.NoError(t, err)
	return newRouter(webhook, m, zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t, "http://unused")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestWebhookEndpoint_StartAndMetrics(t *testing.T) {
	var sent map[string]any
	telegramAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer telegramAPI.Close()

	router := testRouter(t, telegramAPI.URL)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/telegram/webhook", strings.NewReader(`{"message":{"chat":{"id":5},"text":"/start"}}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(5), sent["chat_id"])

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `whalespump_webhook_updates_total{kind="start"} 1`)
}

func TestWebhookEndpoint_MethodNotAllowed(t *testing.T) {
	router := testRouter(t, "http://unused")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/telegram/webhook", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
