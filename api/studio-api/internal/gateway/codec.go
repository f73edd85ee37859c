package internal_gateway

import (
	"strings"

	"github.com/pion/webrtc/v4"

	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

// applyCodecPreferences installs the configured codec ordering on every
// transceiver. Best-effort: a transceiver whose capabilities match
// nothing keeps its defaults, and a failing SetCodecPreferences is
// logged rather than aborting the attempt.
func applyCodecPreferences(t Transport, cfg *gateway_internal.Config, logger commons.Logger) {
	if len(cfg.CodecPreferences) == 0 {
		return
	}
	for _, tr := range t.Transceivers() {
		filtered := filterCodecs(tr.Codecs(), tr.Kind(), cfg.CodecPreferences, cfg.VideoProfile)
		if len(filtered) == 0 {
			continue
		}
		if err := tr.SetCodecPreferences(filtered); err != nil {
			logger.Warnw("Failed to set codec preferences",
				"kind", tr.Kind().String(), "error", err)
		}
	}
}

// filterCodecs returns the capabilities matching the preference families,
// in preference order. Video is additionally pinned to the profile tag
// when one is configured; if the pin would empty the set, the family
// matches stand.
func filterCodecs(caps []webrtc.RTPCodecParameters, kind webrtc.RTPCodecType, prefs []string, videoProfile string) []webrtc.RTPCodecParameters {
	var family []webrtc.RTPCodecParameters
	seen := make(map[webrtc.PayloadType]bool)
	for _, pref := range prefs {
		for _, c := range caps {
			if seen[c.PayloadType] {
				continue
			}
			if codecMatchesFamily(c.MimeType, pref) {
				family = append(family, c)
				seen[c.PayloadType] = true
			}
		}
	}

	if kind == webrtc.RTPCodecTypeVideo && videoProfile != "" {
		var pinned []webrtc.RTPCodecParameters
		for _, c := range family {
			if strings.Contains(strings.ToLower(c.SDPFmtpLine), strings.ToLower(videoProfile)) {
				pinned = append(pinned, c)
			}
		}
		if len(pinned) > 0 {
			return pinned
		}
	}
	return family
}

func codecMatchesFamily(mimeType, pref string) bool {
	return strings.Contains(strings.ToLower(mimeType), strings.ToLower(pref))
}
