package studio_publish_api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	internal_gateway "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gateway"
	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
	"github.com/kluth/stream-buddy-sub002/config"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

// StreamSource provides the media stream to publish.
type StreamSource interface {
	Stream() *internal_gateway.MediaStream
}

type PublishApi struct {
	cfg     *config.AppConfig
	logger  commons.Logger
	gateway *internal_gateway.Gateway
	source  StreamSource
}

func NewPublishApi(cfg *config.AppConfig, logger commons.Logger, gateway *internal_gateway.Gateway, source StreamSource) *PublishApi {
	return &PublishApi{
		cfg:     cfg,
		logger:  logger,
		gateway: gateway,
		source:  source,
	}
}

type startRequest struct {
	IngestURL        string   `json:"ingestUrl"`
	BearerToken      string   `json:"bearerToken"`
	CodecPreferences []string `json:"codecPreferences"`
	VideoProfile     string   `json:"videoProfile"`
	ConnectTimeoutMs int      `json:"connectTimeoutMs"`
}

// Start opens a publishing connection. The request body carries optional
// per-attempt overrides and may be empty.
func (pApi *PublishApi) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	override := &gateway_internal.Override{
		IngestURL:        req.IngestURL,
		BearerToken:      req.BearerToken,
		CodecPreferences: req.CodecPreferences,
		VideoProfile:     req.VideoProfile,
	}
	if req.ConnectTimeoutMs > 0 {
		override.ConnectTimeout = time.Duration(req.ConnectTimeoutMs) * time.Millisecond
	}

	if err := pApi.gateway.CreateConnection(c.Request.Context(), pApi.source.Stream(), override); err != nil {
		pApi.logger.Errorw("publish start failed", "error", err)
		c.JSON(statusForError(err), gin.H{
			"state": pApi.gateway.State().String(),
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":  pApi.gateway.State().String(),
		"stream": pApi.source.Stream().ID,
	})
}

// Stop closes the current connection. Always succeeds.
func (pApi *PublishApi) Stop(c *gin.Context) {
	pApi.gateway.CloseConnection()
	c.JSON(http.StatusOK, gin.H{"state": pApi.gateway.State().String()})
}

// Status reports the lifecycle state and the last failure, if any.
func (pApi *PublishApi) Status(c *gin.Context) {
	resp := gin.H{"state": pApi.gateway.State().String()}
	if stream := pApi.gateway.Stream(); stream != nil {
		resp["stream"] = stream.ID
	}
	if err := pApi.gateway.LastError(); err != nil {
		resp["lastError"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Metrics returns the latest transport statistics, 204 when the
// connection is not up.
func (pApi *PublishApi) Metrics(c *gin.Context) {
	snap := pApi.gateway.Metrics()
	if snap == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// statusForError maps gateway failures onto upstream-style HTTP codes:
// the ingest endpoint rejecting us is a bad gateway, timing out against
// it is a gateway timeout.
func statusForError(err error) int {
	var gerr *internal_gateway.GatewayError
	if !errors.As(err, &gerr) {
		return http.StatusInternalServerError
	}
	switch gerr.Kind {
	case internal_gateway.ErrNegotiationFailed:
		return http.StatusBadGateway
	case internal_gateway.ErrConnectionTimeout, internal_gateway.ErrICEGatheringTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
