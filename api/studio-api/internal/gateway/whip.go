package internal_gateway

import (
	"context"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

// whipNegotiator performs the one-shot WHIP exchange: POST the local SDP
// offer, receive the SDP answer in the response body. No retries; a
// failure here is terminal for the attempt.
type whipNegotiator struct {
	logger commons.Logger
	client *resty.Client
}

func newWHIPNegotiator(logger commons.Logger) *whipNegotiator {
	return &whipNegotiator{
		logger: logger,
		client: resty.New(),
	}
}

// Negotiate exchanges the offer for an answer against the ingestion URL.
// It returns the answer description and the session resource URL from
// the Location header (empty if the endpoint sent none).
func (n *whipNegotiator) Negotiate(ctx context.Context, cfg *gateway_internal.Config, offer webrtc.SessionDescription) (webrtc.SessionDescription, string, error) {
	req := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/sdp").
		SetHeader("Accept", "application/sdp").
		SetBody(offer.SDP)
	if cfg.BearerToken != "" {
		req.SetAuthToken(cfg.BearerToken)
	}

	resp, err := req.Post(cfg.IngestURL)
	if err != nil {
		return webrtc.SessionDescription{}, "", newError(ErrNegotiationFailed, StateConnecting, err,
			"WHIP negotiation failed: %v", err)
	}
	if !resp.IsSuccess() {
		return webrtc.SessionDescription{}, "", newError(ErrNegotiationFailed, StateConnecting, nil,
			"WHIP negotiation failed: %s", resp.Status())
	}

	answerSDP := string(resp.Body())

	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal(resp.Body()); err != nil {
		n.logger.Debugw("WHIP answer is not strictly parseable SDP, passing through",
			"ingest", cfg.IngestURL, "error", err)
	} else {
		n.logger.Infow("WHIP negotiation complete",
			"ingest", cfg.IngestURL, "mediaSections", len(parsed.MediaDescriptions))
	}

	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	return answer, resolveResource(cfg.IngestURL, resp.Header().Get("Location")), nil
}

// Teardown deletes the WHIP session resource. Best-effort: the endpoint
// may have expired the session already, so failures are only logged.
func (n *whipNegotiator) Teardown(resource, bearerToken string) {
	if resource == "" {
		return
	}
	req := n.client.R()
	if bearerToken != "" {
		req.SetAuthToken(bearerToken)
	}
	resp, err := req.Delete(resource)
	if err != nil {
		n.logger.Debugw("WHIP resource delete failed", "resource", resource, "error", err)
		return
	}
	if !resp.IsSuccess() {
		n.logger.Debugw("WHIP resource delete rejected", "resource", resource, "status", resp.Status())
	}
}

// resolveResource resolves a (possibly relative) Location header against
// the ingestion URL.
func resolveResource(ingestURL, location string) string {
	if location == "" {
		return ""
	}
	base, err := url.Parse(ingestURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
