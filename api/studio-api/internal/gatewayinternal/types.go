package gateway_internal

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Opus constants (WebRTC standard: 48kHz).
const (
	OpusSampleRate  = 48000
	OpusChannels    = 2 // Opus RTP always signals 2 encoding channels (opus/48000/2) per RFC 7587
	OpusPayloadType = 111
	OpusSDPFmtpLine = "minptime=10;useinbandfec=1"

	OpusFrameDuration = 20 * time.Millisecond
)

const (
	// DefaultConnectTimeout bounds the wait for the transport to report
	// connected after the answer has been applied.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultICEGatherTimeout bounds local candidate gathering. It is
	// independent of the overall connect timeout: the offer is only sent
	// once gathering has finished (no trickle ICE).
	DefaultICEGatherTimeout = 5 * time.Second

	// DefaultMetricsInterval is how often transport statistics are
	// sampled while the connection is up.
	DefaultMetricsInterval = time.Second

	// StateEventBuffer sizes the transport state-change channel used
	// during a connection attempt.
	StateEventBuffer = 8
)

// DefaultVideoProfile pins H264 to constrained baseline, the profile
// most ingest endpoints accept without transcoding.
const DefaultVideoProfile = "42e01f"

// ICEServer represents a STUN/TURN server.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Config holds everything one connection attempt needs. Immutable per
// attempt; Merged produces the effective config from per-call overrides.
type Config struct {
	IngestURL   string
	BearerToken string
	ICEServers  []ICEServer

	// CodecPreferences is an ordered list of MIME families, most
	// preferred first (e.g. "video/H264", "audio/opus").
	CodecPreferences []string
	// VideoProfile further constrains video codecs to a profile tag in
	// their fmtp line. Empty disables the constraint.
	VideoProfile string

	ConnectTimeout   time.Duration
	ICEGatherTimeout time.Duration
	MetricsInterval  time.Duration
}

// DefaultConfig returns the gateway's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		CodecPreferences: []string{webrtc.MimeTypeH264, webrtc.MimeTypeOpus},
		VideoProfile:     DefaultVideoProfile,
		ConnectTimeout:   DefaultConnectTimeout,
		ICEGatherTimeout: DefaultICEGatherTimeout,
		MetricsInterval:  DefaultMetricsInterval,
	}
}

// Override carries per-attempt configuration. Zero-valued fields inherit
// from the base config.
type Override struct {
	IngestURL        string
	BearerToken      string
	ICEServers       []ICEServer
	CodecPreferences []string
	VideoProfile     string
	ConnectTimeout   time.Duration
}

// Merged returns a copy of c with the non-zero fields of o applied. Pure:
// neither c nor o is modified.
func (c *Config) Merged(o *Override) *Config {
	out := *c
	out.ICEServers = append([]ICEServer(nil), c.ICEServers...)
	out.CodecPreferences = append([]string(nil), c.CodecPreferences...)
	if o == nil {
		return &out
	}
	if o.IngestURL != "" {
		out.IngestURL = o.IngestURL
	}
	if o.BearerToken != "" {
		out.BearerToken = o.BearerToken
	}
	if len(o.ICEServers) > 0 {
		out.ICEServers = append([]ICEServer(nil), o.ICEServers...)
	}
	if len(o.CodecPreferences) > 0 {
		out.CodecPreferences = append([]string(nil), o.CodecPreferences...)
	}
	if o.VideoProfile != "" {
		out.VideoProfile = o.VideoProfile
	}
	if o.ConnectTimeout > 0 {
		out.ConnectTimeout = o.ConnectTimeout
	}
	return &out
}
