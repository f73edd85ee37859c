package internal_gateway

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// MetricsSnapshot is a point-in-time aggregate of transport health.
// Each snapshot supersedes the previous one; nothing is merged.
type MetricsSnapshot struct {
	BytesSent          uint64    `json:"bytesSent"`
	BytesReceived      uint64    `json:"bytesReceived"`
	PacketsLost        int64     `json:"packetsLost"`
	RoundTripTimeMs    float64   `json:"roundTripTimeMs"`
	ElapsedMs          int64     `json:"elapsedMs"`
	CandidatesGathered int       `json:"candidatesGathered"`
	CollectedAt        time.Time `json:"collectedAt"`
}

// sampleStats folds a stats report into a snapshot: outbound bytes are
// summed across all outbound-RTP entries, inbound bytes and losses
// across all inbound-RTP entries, and the RTT comes from the succeeded
// candidate pair (0 when none has succeeded yet).
func sampleStats(report webrtc.StatsReport, startedAt time.Time, candidates int, now time.Time) *MetricsSnapshot {
	snap := &MetricsSnapshot{
		ElapsedMs:          now.Sub(startedAt).Milliseconds(),
		CandidatesGathered: candidates,
		CollectedAt:        now,
	}
	for _, s := range report {
		switch st := s.(type) {
		case webrtc.OutboundRTPStreamStats:
			snap.BytesSent += st.BytesSent
		case webrtc.InboundRTPStreamStats:
			snap.BytesReceived += st.BytesReceived
			snap.PacketsLost += int64(st.PacketsLost)
		case webrtc.ICECandidatePairStats:
			if st.State == webrtc.StatsICECandidatePairStateSucceeded && snap.RoundTripTimeMs == 0 {
				snap.RoundTripTimeMs = st.CurrentRoundTripTime * 1000
			}
		}
	}
	return snap
}

// collectMetrics polls transport statistics at the configured interval
// for as long as conn is the live connection and the state is connected.
// Closing stop, superseding the connection, or any state change away
// from connected ends the loop.
func (g *Gateway) collectMetrics(conn *Connection, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			g.mu.Lock()
			live := g.conn == conn && g.state == StateConnected
			g.mu.Unlock()
			if !live {
				return
			}

			snap := sampleStats(conn.transport.GetStats(), conn.startedAt, int(conn.candidates.Load()), now)

			g.mu.Lock()
			if g.conn == conn && g.state == StateConnected {
				g.snapshot = snap
			}
			g.mu.Unlock()
		}
	}
}
