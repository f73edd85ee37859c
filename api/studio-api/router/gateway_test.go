package studio_routers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kluth/stream-buddy-sub002/config"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

func TestGatewayConfig_Translation(t *testing.T) {
	gc := &config.GatewayConfig{
		IngestURL:          "https://ingest.example.com/whip",
		BearerToken:        "stream-key",
		StunServers:        []string{"stun:stun.example.com:3478"},
		TurnURL:            "turn:turn.example.com:3478",
		TurnUsername:       "user",
		TurnCredential:     "pass",
		VideoCodec:         "video/VP8",
		AudioCodec:         "audio/opus",
		VideoProfile:       "42001f",
		ConnectTimeoutMs:   2500,
		IceGatherTimeoutMs: 1500,
		MetricsIntervalMs:  500,
	}

	cfg := gatewayConfig(gc)

	assert.Equal(t, "https://ingest.example.com/whip", cfg.IngestURL)
	assert.Equal(t, "stream-key", cfg.BearerToken)

	require.Len(t, cfg.ICEServers, 2)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, cfg.ICEServers[0].URLs)
	assert.Equal(t, []string{"turn:turn.example.com:3478"}, cfg.ICEServers[1].URLs)
	assert.Equal(t, "user", cfg.ICEServers[1].Username)
	assert.Equal(t, "pass", cfg.ICEServers[1].Credential)

	assert.Equal(t, []string{"video/VP8", "audio/opus"}, cfg.CodecPreferences)
	assert.Equal(t, "42001f", cfg.VideoProfile)

	assert.Equal(t, 2500*time.Millisecond, cfg.ConnectTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.ICEGatherTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.MetricsInterval)
}

func TestGatewayConfig_EmptyFieldsKeepDefaults(t *testing.T) {
	cfg := gatewayConfig(&config.GatewayConfig{IngestURL: "http://localhost:8080/whip"})

	assert.Equal(t, "http://localhost:8080/whip", cfg.IngestURL)
	assert.NotEmpty(t, cfg.ICEServers, "defaults provide STUN servers")
	assert.NotEmpty(t, cfg.CodecPreferences)
	assert.NotZero(t, cfg.ConnectTimeout)
	assert.NotZero(t, cfg.MetricsInterval)
}

func TestPublishRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := commons.NewApplicationLogger()
	cfg := &config.AppConfig{
		Name: "studio-gateway", Version: "test", Host: "127.0.0.1", Port: 0, LogLevel: "debug",
		Gateway: config.GatewayConfig{IngestURL: "http://localhost:8080/whip"},
	}

	engine := gin.New()
	cleanup, err := PublishRoutes(cfg, engine, logger)
	require.NoError(t, err)
	defer cleanup()

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/publish/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"new"`)
}

func TestHealthCheckRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, _ := commons.NewApplicationLogger()
	cfg := &config.AppConfig{Name: "studio-gateway", Version: "1.2.3"}

	engine := gin.New()
	HealthCheckRoutes(cfg, engine, logger)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
