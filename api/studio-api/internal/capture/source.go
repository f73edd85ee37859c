package internal_capture

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	internal_gateway "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gateway"
	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

// silentOpusFrame is a minimal Opus packet decoding to silence (TOC for
// a 20 ms CELT frame followed by a near-empty payload).
var silentOpusFrame = []byte{0xf8, 0xff, 0xfe}

// Source produces a media stream for the gateway to publish. Until real
// capture devices are attached it feeds a silent Opus track, which keeps
// the RTP session alive and the ingest endpoint's timeout at bay.
type Source struct {
	logger commons.Logger
	track  *webrtc.TrackLocalStaticSample
	stream *internal_gateway.MediaStream

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

func NewSource(logger commons.Logger) (*Source, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: gateway_internal.OpusSampleRate,
			Channels:  gateway_internal.OpusChannels,
		},
		"audio", "studio-capture",
	)
	if err != nil {
		return nil, err
	}

	s := &Source{
		logger: logger,
		track:  track,
		stream: internal_gateway.NewMediaStream(track),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// Stream returns the media stream to hand to the gateway.
func (s *Source) Stream() *internal_gateway.MediaStream {
	return s.stream
}

// pump writes one silent frame per Opus frame interval until Close.
func (s *Source) pump() {
	ticker := time.NewTicker(gateway_internal.OpusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			err := s.track.WriteSample(media.Sample{
				Data:     silentOpusFrame,
				Duration: gateway_internal.OpusFrameDuration,
			})
			if err != nil {
				s.logger.Debugw("writing silent frame", "error", err)
			}
		}
	}
}

// Close stops the sample pump. Idempotent.
func (s *Source) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
