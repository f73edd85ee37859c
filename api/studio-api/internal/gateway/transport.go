package internal_gateway

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
)

// Transceiver is the slice of a peer transceiver the codec enforcer
// needs: its kind, the sender capabilities for that kind, and the
// preference setter.
type Transceiver interface {
	Kind() webrtc.RTPCodecType
	Codecs() []webrtc.RTPCodecParameters
	SetCodecPreferences([]webrtc.RTPCodecParameters) error
}

// Transport abstracts the underlying peer connection so the lifecycle
// logic can be driven without a network stack. The production
// implementation wraps *webrtc.PeerConnection; tests use an in-package
// fake. Passing nil to a callback setter clears the handler.
type Transport interface {
	AddTrack(track webrtc.TrackLocal) error
	Transceivers() []Transceiver

	CreateOffer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	SetRemoteDescription(webrtc.SessionDescription) error

	ICEGatheringState() webrtc.ICEGatheringState
	OnICECandidate(func(*webrtc.ICECandidate))
	OnICEGatheringStateChange(func(webrtc.ICEGatheringState))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))

	GetStats() webrtc.StatsReport
	Close() error
}

// TransportFactory builds the Transport for one connection attempt.
type TransportFactory func(cfg *gateway_internal.Config) (Transport, error)

// Codec tables registered with the media engine. They double as the
// sender capability sets reported per kind.
var (
	audioSenderCodecs = []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeOpus,
				ClockRate:   gateway_internal.OpusSampleRate,
				Channels:    gateway_internal.OpusChannels,
				SDPFmtpLine: gateway_internal.OpusSDPFmtpLine,
			},
			PayloadType: gateway_internal.OpusPayloadType,
		},
	}

	videoSenderCodecs = []webrtc.RTPCodecParameters{
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			},
			PayloadType: 102,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeH264,
				ClockRate:   90000,
				SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
			},
			PayloadType: 108,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:  webrtc.MimeTypeVP8,
				ClockRate: 90000,
			},
			PayloadType: 96,
		},
		{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:    webrtc.MimeTypeVP9,
				ClockRate:   90000,
				SDPFmtpLine: "profile-id=0",
			},
			PayloadType: 98,
		},
	}
)

func senderCodecs(kind webrtc.RTPCodecType) []webrtc.RTPCodecParameters {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		return append([]webrtc.RTPCodecParameters(nil), audioSenderCodecs...)
	case webrtc.RTPCodecTypeVideo:
		return append([]webrtc.RTPCodecParameters(nil), videoSenderCodecs...)
	default:
		return nil
	}
}

type pionTransport struct {
	pc *webrtc.PeerConnection
}

// NewPionTransport builds a peer connection from the merged ICE server
// list, the explicit codec table and the default interceptors.
func NewPionTransport(cfg *gateway_internal.Config) (Transport, error) {
	mediaEngine := &webrtc.MediaEngine{}
	for _, p := range audioSenderCodecs {
		if err := mediaEngine.RegisterCodec(p, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", p.MimeType, err)
		}
	}
	for _, p := range videoSenderCodecs {
		if err := mediaEngine.RegisterCodec(p, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", p.MimeType, err)
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]webrtc.ICEServer, len(cfg.ICEServers))
	for i, srv := range cfg.ICEServers {
		iceServers[i] = webrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return &pionTransport{pc: pc}, nil
}

func (t *pionTransport) AddTrack(track webrtc.TrackLocal) error {
	// Publish-only: never request media back.
	_, err := t.pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	return err
}

func (t *pionTransport) Transceivers() []Transceiver {
	trs := t.pc.GetTransceivers()
	out := make([]Transceiver, len(trs))
	for i, tr := range trs {
		out[i] = &pionTransceiver{tr: tr}
	}
	return out
}

func (t *pionTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *pionTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(desc)
}

func (t *pionTransport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

func (t *pionTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(desc)
}

func (t *pionTransport) ICEGatheringState() webrtc.ICEGatheringState {
	return t.pc.ICEGatheringState()
}

func (t *pionTransport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	if fn == nil {
		fn = func(*webrtc.ICECandidate) {}
	}
	t.pc.OnICECandidate(fn)
}

func (t *pionTransport) OnICEGatheringStateChange(fn func(webrtc.ICEGatheringState)) {
	if fn == nil {
		fn = func(webrtc.ICEGatheringState) {}
	}
	t.pc.OnICEGatheringStateChange(fn)
}

func (t *pionTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	if fn == nil {
		fn = func(webrtc.PeerConnectionState) {}
	}
	t.pc.OnConnectionStateChange(fn)
}

func (t *pionTransport) GetStats() webrtc.StatsReport {
	return t.pc.GetStats()
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}

type pionTransceiver struct {
	tr *webrtc.RTPTransceiver
}

func (p *pionTransceiver) Kind() webrtc.RTPCodecType {
	return p.tr.Kind()
}

func (p *pionTransceiver) Codecs() []webrtc.RTPCodecParameters {
	return senderCodecs(p.tr.Kind())
}

func (p *pionTransceiver) SetCodecPreferences(codecs []webrtc.RTPCodecParameters) error {
	return p.tr.SetCodecPreferences(codecs)
}
