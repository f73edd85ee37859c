package studio_routers

import (
	"time"

	"github.com/gin-gonic/gin"

	internal_capture "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/capture"
	internal_gateway "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gateway"
	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
	studioPublishApi "github.com/kluth/stream-buddy-sub002/api/studio-api/publish"
	"github.com/kluth/stream-buddy-sub002/config"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

// PublishRoutes wires the publishing gateway and its capture source into
// the engine. The returned cleanup closes the connection and stops the
// capture pump; call it on shutdown.
func PublishRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger) (func(), error) {
	source, err := internal_capture.NewSource(logger)
	if err != nil {
		return nil, err
	}
	gateway := internal_gateway.NewGateway(gatewayConfig(&cfg.Gateway), logger)

	apiv1 := engine.Group("v1/publish")
	pApi := studioPublishApi.NewPublishApi(cfg, logger, gateway, source)
	{
		apiv1.POST("/start", pApi.Start)
		apiv1.POST("/stop", pApi.Stop)
		apiv1.GET("/status", pApi.Status)
		apiv1.GET("/metrics", pApi.Metrics)
		apiv1.GET("/events", pApi.Events)
	}

	cleanup := func() {
		gateway.CloseConnection()
		source.Close()
	}
	return cleanup, nil
}

// gatewayConfig translates the application config into the gateway's
// connection config.
func gatewayConfig(gc *config.GatewayConfig) *gateway_internal.Config {
	cfg := gateway_internal.DefaultConfig()
	cfg.IngestURL = gc.IngestURL
	cfg.BearerToken = gc.BearerToken

	if len(gc.StunServers) > 0 {
		cfg.ICEServers = []gateway_internal.ICEServer{{URLs: gc.StunServers}}
	}
	if gc.TurnURL != "" {
		cfg.ICEServers = append(cfg.ICEServers, gateway_internal.ICEServer{
			URLs:       []string{gc.TurnURL},
			Username:   gc.TurnUsername,
			Credential: gc.TurnCredential,
		})
	}

	var prefs []string
	if gc.VideoCodec != "" {
		prefs = append(prefs, gc.VideoCodec)
	}
	if gc.AudioCodec != "" {
		prefs = append(prefs, gc.AudioCodec)
	}
	if len(prefs) > 0 {
		cfg.CodecPreferences = prefs
	}
	if gc.VideoProfile != "" {
		cfg.VideoProfile = gc.VideoProfile
	}

	if gc.ConnectTimeoutMs > 0 {
		cfg.ConnectTimeout = time.Duration(gc.ConnectTimeoutMs) * time.Millisecond
	}
	if gc.IceGatherTimeoutMs > 0 {
		cfg.ICEGatherTimeout = time.Duration(gc.IceGatherTimeoutMs) * time.Millisecond
	}
	if gc.MetricsIntervalMs > 0 {
		cfg.MetricsInterval = time.Duration(gc.MetricsIntervalMs) * time.Millisecond
	}
	return cfg
}
