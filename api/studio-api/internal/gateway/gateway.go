package internal_gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	gateway_internal "github.com/kluth/stream-buddy-sub002/api/studio-api/internal/gatewayinternal"
	"github.com/kluth/stream-buddy-sub002/pkg/commons"
)

// MediaStream bundles the local tracks published over one connection.
type MediaStream struct {
	ID     string
	Tracks []webrtc.TrackLocal
}

func NewMediaStream(tracks ...webrtc.TrackLocal) *MediaStream {
	return &MediaStream{
		ID:     uuid.NewString(),
		Tracks: tracks,
	}
}

// Connection is one live publishing session. It is created by
// CreateConnection and owned by the gateway until detached.
type Connection struct {
	transport  Transport
	stream     *MediaStream
	cfg        *gateway_internal.Config
	startedAt  time.Time
	candidates atomic.Int64
	resource   string

	// Transport state events are buffered in states until the connection
	// is installed on the gateway, then delivered directly. stateMu makes
	// the handoff atomic so no event is dropped in between.
	stateMu   sync.Mutex
	installed bool
	states    chan webrtc.PeerConnectionState
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithTransportFactory swaps the transport constructor. Used by tests to
// run the full lifecycle against an in-memory transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(g *Gateway) { g.newTransport = f }
}

// Gateway owns at most one publishing connection at a time and drives it
// through the new/connecting/connected/disconnected/failed/closed
// lifecycle. All exported methods are safe for concurrent use.
type Gateway struct {
	logger       commons.Logger
	config       *gateway_internal.Config
	newTransport TransportFactory
	negotiator   *whipNegotiator

	// opMu serializes CreateConnection and CloseConnection so that a
	// previous connection is always torn down before a new transport is
	// built.
	opMu sync.Mutex

	mu            sync.Mutex
	state         State
	stream        *MediaStream
	conn          *Connection
	lastErr       *GatewayError
	snapshot      *MetricsSnapshot
	metricsStop   chan struct{}
	stateHandlers map[int64]func(State)
	nextHandlerID int64
}

func NewGateway(cfg *gateway_internal.Config, logger commons.Logger, opts ...Option) *Gateway {
	if cfg == nil {
		cfg = gateway_internal.DefaultConfig()
	}
	g := &Gateway{
		logger:        logger,
		config:        cfg,
		newTransport:  NewPionTransport,
		negotiator:    newWHIPNegotiator(logger),
		state:         StateNew,
		stateHandlers: make(map[int64]func(State)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateConnection tears down any previous connection, then negotiates a
// new one for stream. Per-call overrides are merged over the gateway's
// base config. On failure the gateway lands in the failed state and the
// returned error is a *GatewayError.
func (g *Gateway) CreateConnection(ctx context.Context, stream *MediaStream, override *gateway_internal.Override) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	prev := g.detachLocked()
	g.stream = stream
	handlers := g.transitionLocked(StateConnecting)
	g.lastErr = nil
	g.mu.Unlock()

	g.shutdown(prev)
	g.notify(handlers, StateConnecting)

	cfg := g.config.Merged(override)
	conn, gerr := g.establish(ctx, cfg, stream)
	if gerr != nil {
		g.logger.Errorw("connection attempt failed", "kind", gerr.Kind, "error", gerr.Message)
		g.mu.Lock()
		g.lastErr = gerr
		g.stream = nil
		handlers = g.transitionLocked(StateFailed)
		g.mu.Unlock()
		g.notify(handlers, StateFailed)
		return gerr
	}

	g.mu.Lock()
	g.conn = conn
	g.startMetricsLocked(conn)
	handlers = g.transitionLocked(StateConnected)
	g.mu.Unlock()

	g.logger.Infow("connection established",
		"stream", stream.ID,
		"ingest", cfg.IngestURL,
		"resource", conn.resource,
	)
	g.notify(handlers, StateConnected)

	// Flip the connection's handler from buffering to direct delivery
	// and replay anything the transport fired before the handoff, so a
	// disconnect racing the connected wait is never dropped.
	conn.stateMu.Lock()
	conn.installed = true
	for {
		select {
		case s := <-conn.states:
			g.onTransportState(conn, s)
			continue
		default:
		}
		break
	}
	conn.stateMu.Unlock()
	return nil
}

// establish runs one negotiation attempt end to end: build the
// transport, add tracks, apply codec preferences, gather ICE, exchange
// SDP over WHIP and wait for the transport to connect. The transport is
// closed on any failure.
func (g *Gateway) establish(ctx context.Context, cfg *gateway_internal.Config, stream *MediaStream) (*Connection, *GatewayError) {
	transport, err := g.newTransport(cfg)
	if err != nil {
		return nil, newError(ErrTransport, StateConnecting, err, "creating transport: %v", err)
	}

	conn := &Connection{
		transport: transport,
		stream:    stream,
		cfg:       cfg,
		startedAt: time.Now(),
		states:    make(chan webrtc.PeerConnectionState, gateway_internal.StateEventBuffer),
	}
	fail := func(gerr *GatewayError) (*Connection, *GatewayError) {
		transport.OnConnectionStateChange(nil)
		transport.Close()
		if conn.resource != "" {
			g.negotiator.Teardown(conn.resource, cfg.BearerToken)
		}
		return nil, gerr
	}

	transport.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c != nil {
			conn.candidates.Add(1)
		}
	})

	// One handler for the whole connection lifetime: it buffers events
	// while the attempt is in flight and hands them to the lifecycle
	// logic once the connection is installed.
	transport.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		conn.stateMu.Lock()
		if !conn.installed {
			select {
			case conn.states <- s:
			default:
			}
			conn.stateMu.Unlock()
			return
		}
		conn.stateMu.Unlock()
		g.onTransportState(conn, s)
	})

	for _, track := range stream.Tracks {
		if err := transport.AddTrack(track); err != nil {
			return fail(newError(ErrTransport, StateConnecting, err, "adding track: %v", err))
		}
	}

	applyCodecPreferences(transport, cfg, g.logger)

	offer, err := transport.CreateOffer()
	if err != nil {
		return fail(newError(ErrNegotiationFailed, StateConnecting, err, "creating offer: %v", err))
	}
	if err := transport.SetLocalDescription(offer); err != nil {
		return fail(newError(ErrTransport, StateConnecting, err, "applying local description: %v", err))
	}

	if err := awaitICEGathering(ctx, transport, cfg.ICEGatherTimeout); err != nil {
		return fail(toGatewayError(err))
	}

	// The gathered description carries the candidates; fall back to the
	// bare offer for transports that do not rewrite it.
	local := transport.LocalDescription()
	if local == nil {
		local = &offer
	}

	answer, resource, err := g.negotiator.Negotiate(ctx, cfg, *local)
	if err != nil {
		return fail(toGatewayError(err))
	}
	conn.resource = resource

	if err := transport.SetRemoteDescription(answer); err != nil {
		return fail(newError(ErrNegotiationFailed, StateConnecting, err, "applying remote description: %v", err))
	}

	if gerr := awaitConnected(ctx, conn.states, cfg.ConnectTimeout); gerr != nil {
		return fail(gerr)
	}
	return conn, nil
}

// awaitConnected drains transport state events until the transport is
// connected, has conclusively failed, or the timeout elapses.
func awaitConnected(ctx context.Context, states <-chan webrtc.PeerConnectionState, timeout time.Duration) *GatewayError {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case s := <-states:
			switch s {
			case webrtc.PeerConnectionStateConnected:
				return nil
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
				return newError(ErrConnectionFailed, StateConnecting, nil, "transport reported %s while connecting", s)
			}
		case <-timer.C:
			return newError(ErrConnectionTimeout, StateConnecting, nil, "transport did not connect within %s", timeout)
		case <-ctx.Done():
			return newError(ErrTransport, StateConnecting, ctx.Err(),
				"connection attempt cancelled while awaiting transport")
		}
	}
}

// onTransportState handles transport state changes after a connection is
// established. Events from superseded connections are ignored.
func (g *Gateway) onTransportState(conn *Connection, s webrtc.PeerConnectionState) {
	g.mu.Lock()
	if g.conn != conn {
		g.mu.Unlock()
		return
	}

	var (
		handlers []func(State)
		next     State
		release  *Connection
	)
	switch s {
	case webrtc.PeerConnectionStateDisconnected:
		if g.state == StateConnected {
			g.stopMetricsLocked()
			next = StateDisconnected
			handlers = g.transitionLocked(next)
		}
	case webrtc.PeerConnectionStateConnected:
		// Transient disconnects recover on their own.
		if g.state == StateDisconnected {
			g.startMetricsLocked(conn)
			next = StateConnected
			handlers = g.transitionLocked(next)
		}
	case webrtc.PeerConnectionStateFailed:
		if g.state == StateConnected || g.state == StateDisconnected {
			g.lastErr = newError(ErrConnectionFailed, g.state, nil, "transport failed")
			release = g.detachLocked()
			next = StateFailed
			handlers = g.transitionLocked(next)
		}
	}
	g.mu.Unlock()

	if handlers != nil {
		g.logger.Infow("transport state changed", "transport", s.String(), "state", next.String())
		g.notify(handlers, next)
	}
	if release != nil {
		// Close the transport off the callback goroutine; pion delivers
		// state callbacks from inside the peer connection.
		go g.shutdown(release)
	}
}

// CloseConnection tears down the current connection, if any, and moves
// the gateway to the closed state. Safe to call repeatedly and before
// any connection was opened.
func (g *Gateway) CloseConnection() {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	conn := g.detachLocked()
	var handlers []func(State)
	if g.state != StateClosed {
		handlers = g.transitionLocked(StateClosed)
	}
	g.mu.Unlock()

	g.shutdown(conn)
	g.notify(handlers, StateClosed)
}

// detachLocked removes the current connection from the gateway without
// closing it. Callers close it via shutdown once g.mu is released.
func (g *Gateway) detachLocked() *Connection {
	g.stopMetricsLocked()
	conn := g.conn
	g.conn = nil
	g.stream = nil
	g.snapshot = nil
	return conn
}

// shutdown closes the transport and releases the WHIP resource.
// Must not be called while holding g.mu.
func (g *Gateway) shutdown(conn *Connection) {
	if conn == nil {
		return
	}
	if err := conn.transport.Close(); err != nil {
		g.logger.Warnw("closing transport", "error", err)
	}
	if conn.resource != "" {
		g.negotiator.Teardown(conn.resource, conn.cfg.BearerToken)
	}
}

func (g *Gateway) startMetricsLocked(conn *Connection) {
	g.stopMetricsLocked()
	stop := make(chan struct{})
	g.metricsStop = stop
	go g.collectMetrics(conn, conn.cfg.MetricsInterval, stop)
}

func (g *Gateway) stopMetricsLocked() {
	if g.metricsStop != nil {
		close(g.metricsStop)
		g.metricsStop = nil
	}
}

// transitionLocked records the new state and returns the handlers to
// notify. Handlers run outside g.mu so they may call back into the
// gateway.
func (g *Gateway) transitionLocked(s State) []func(State) {
	g.state = s
	if len(g.stateHandlers) == 0 {
		return nil
	}
	handlers := make([]func(State), 0, len(g.stateHandlers))
	for _, h := range g.stateHandlers {
		handlers = append(handlers, h)
	}
	return handlers
}

func (g *Gateway) notify(handlers []func(State), s State) {
	for _, h := range handlers {
		h(s)
	}
}

// SubscribeState registers fn for lifecycle transitions and returns an
// unsubscribe function. fn is invoked synchronously after each
// transition, never while internal locks are held.
func (g *Gateway) SubscribeState(fn func(State)) func() {
	g.mu.Lock()
	id := g.nextHandlerID
	g.nextHandlerID++
	g.stateHandlers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.stateHandlers, id)
		g.mu.Unlock()
	}
}

// State reports the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Stream returns the stream of the current attempt or connection, or
// nil. It is recorded as soon as the gateway enters connecting, cleared
// on close and on fatal failure.
func (g *Gateway) Stream() *MediaStream {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream
}

// Metrics returns the latest snapshot while connected, nil otherwise.
func (g *Gateway) Metrics() *MetricsSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateConnected {
		return nil
	}
	return g.snapshot
}

// LastError returns the error of the most recent failure, or nil.
func (g *Gateway) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastErr == nil {
		return nil
	}
	return g.lastErr
}
