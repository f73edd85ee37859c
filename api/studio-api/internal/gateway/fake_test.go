package internal_gateway

import (
	"sync"

	"github.com/pion/webrtc/v4"

	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
)

// fakeTransceiver records the preferences applied to it.
type fakeTransceiver struct {
	kind    webrtc.RTPCodecType
	codecs  []webrtc.RTPCodecParameters
	applied []webrtc.RTPCodecParameters
	prefErr error
}

func (f *fakeTransceiver) Kind() webrtc.RTPCodecType            { return f.kind }
func (f *fakeTransceiver) Codecs() []webrtc.RTPCodecParameters  { return f.codecs }
func (f *fakeTransceiver) SetCodecPreferences(codecs []webrtc.RTPCodecParameters) error {
	if f.prefErr != nil {
		return f.prefErr
	}
	f.applied = codecs
	return nil
}

// fakeTransport drives the full connection lifecycle in memory. State
// changes are emitted synchronously from SetRemoteDescription according
// to the configured behavior.
type fakeTransport struct {
	mu sync.Mutex

	tracks       []webrtc.TrackLocal
	transceivers []*fakeTransceiver

	offerSDP    string
	localDesc   *webrtc.SessionDescription
	remoteDesc  *webrtc.SessionDescription
	addTrackErr error
	offerErr    error

	gatherState      webrtc.ICEGatheringState
	gatherHandler    func(webrtc.ICEGatheringState)
	gatherListeners  int
	candidateHandler func(*webrtc.ICECandidate)
	connHandler      func(webrtc.PeerConnectionState)

	// connectOnRemote emits connecting+connected when the answer is
	// applied; failOnRemote emits failed; neither set emits nothing.
	// afterConnect, if set, is emitted in the same burst right after
	// connected, before the caller regains control.
	connectOnRemote bool
	failOnRemote    bool
	afterConnect    []webrtc.PeerConnectionState

	stats webrtc.StatsReport

	closeCount int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		offerSDP:        "mock-sdp-offer",
		gatherState:     webrtc.ICEGatheringStateComplete,
		connectOnRemote: true,
		stats:           webrtc.StatsReport{},
	}
}

func (f *fakeTransport) AddTrack(track webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addTrackErr != nil {
		return f.addTrackErr
	}
	f.tracks = append(f.tracks, track)
	f.transceivers = append(f.transceivers, &fakeTransceiver{
		kind:   track.Kind(),
		codecs: senderCodecs(track.Kind()),
	})
	return nil
}

func (f *fakeTransport) Transceivers() []Transceiver {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Transceiver, len(f.transceivers))
	for i, tr := range f.transceivers {
		out[i] = tr
	}
	return out
}

func (f *fakeTransport) CreateOffer() (webrtc.SessionDescription, error) {
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: f.offerSDP}, nil
}

func (f *fakeTransport) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	f.localDesc = &desc
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) LocalDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localDesc
}

func (f *fakeTransport) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	f.remoteDesc = &desc
	connect, fail := f.connectOnRemote, f.failOnRemote
	after := append([]webrtc.PeerConnectionState(nil), f.afterConnect...)
	f.mu.Unlock()

	if connect {
		f.emitConnState(webrtc.PeerConnectionStateConnecting)
		f.emitConnState(webrtc.PeerConnectionStateConnected)
		for _, s := range after {
			f.emitConnState(s)
		}
	} else if fail {
		f.emitConnState(webrtc.PeerConnectionStateFailed)
	}
	return nil
}

func (f *fakeTransport) ICEGatheringState() webrtc.ICEGatheringState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gatherState
}

func (f *fakeTransport) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	f.mu.Lock()
	f.candidateHandler = fn
	f.mu.Unlock()
}

func (f *fakeTransport) OnICEGatheringStateChange(fn func(webrtc.ICEGatheringState)) {
	f.mu.Lock()
	f.gatherHandler = fn
	if fn != nil {
		f.gatherListeners++
	}
	f.mu.Unlock()
}

func (f *fakeTransport) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	f.connHandler = fn
	f.mu.Unlock()
}

func (f *fakeTransport) GetStats() webrtc.StatsReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closeCount++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount > 0
}

func (f *fakeTransport) closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

func (f *fakeTransport) emitConnState(s webrtc.PeerConnectionState) {
	f.mu.Lock()
	fn := f.connHandler
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeTransport) emitCandidate(c *webrtc.ICECandidate) {
	f.mu.Lock()
	fn := f.candidateHandler
	f.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (f *fakeTransport) emitGatherState(s webrtc.ICEGatheringState) {
	f.mu.Lock()
	f.gatherState = s
	fn := f.gatherHandler
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// fakeFactory produces fakeTransports and records, per creation, whether
// the previously created transport had already been closed.
type fakeFactory struct {
	mu               sync.Mutex
	prepare          func(*fakeTransport)
	transports       []*fakeTransport
	prevOpenAtCreate []bool
	err              error
}

func (f *fakeFactory) Make(_ *gateway_internal.Config) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	prevOpen := false
	if n := len(f.transports); n > 0 {
		prevOpen = !f.transports[n-1].closed()
	}
	ft := newFakeTransport()
	if f.prepare != nil {
		f.prepare(ft)
	}
	f.transports = append(f.transports, ft)
	f.prevOpenAtCreate = append(f.prevOpenAtCreate, prevOpen)
	return ft, nil
}

func (f *fakeFactory) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transports) == 0 {
		return nil
	}
	return f.transports[len(f.transports)-1]
}
