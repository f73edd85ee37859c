package internal_gateway

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// awaitICEGathering blocks until the transport reports gathering
// complete, the timeout elapses, or ctx is cancelled. There is no
// trickle ICE: the finalized offer is only sent once gathering has
// finished, so late candidates have nowhere to go.
//
// If gathering is already complete no listener is registered; otherwise
// the listener is cleared before returning.
func awaitICEGathering(ctx context.Context, t Transport, timeout time.Duration) error {
	if t.ICEGatheringState() == webrtc.ICEGatheringStateComplete {
		return nil
	}

	done := make(chan struct{})
	var once sync.Once
	complete := func() {
		once.Do(func() { close(done) })
	}

	t.OnICEGatheringStateChange(func(s webrtc.ICEGatheringState) {
		if s == webrtc.ICEGatheringStateComplete {
			complete()
		}
	})
	defer t.OnICEGatheringStateChange(nil)

	// Gathering may have finished between the first check and the
	// registration above.
	if t.ICEGatheringState() == webrtc.ICEGatheringStateComplete {
		complete()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return newError(ErrICEGatheringTimeout, StateConnecting, nil,
			"ICE gathering did not complete within %s", timeout)
	case <-ctx.Done():
		return newError(ErrTransport, StateConnecting, ctx.Err(),
			"connection attempt cancelled during ICE gathering")
	}
}
