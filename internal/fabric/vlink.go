package fabric

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Sentinel errors for virtual-link operations.
var (
	// ErrRecvTimeout is returned by Endpoint.Recv when no frame arrives
	// before the deadline, including on shutdown (spec.md §4.D).
	ErrRecvTimeout = errors.New("recv timeout")

	// ErrAlreadyConnected is returned by Link.Connect on a link that has
	// already been connected once (spec.md §4.D: "connect is one-shot for
	// the lifetime of the two endpoints").
	ErrAlreadyConnected = errors.New("link already connected")
)

// EndpointConfig parameterizes one virtual-link endpoint's simulated
// transport characteristics (spec.md §4.D, grounded on
// original_source/three_port_switch/virtual_link.h's vlink_config_t).
type EndpointConfig struct {
	// BaseLatencyUs and ExtraDelayUs are fixed per-send delay components,
	// in microseconds.
	BaseLatencyUs int64
	ExtraDelayUs  int64

	// JitterUs bounds a symmetric uniform(-jitter, +jitter) delay
	// perturbation, clamped so the total delay never goes negative.
	JitterUs int64

	// LossProbability is drawn against uniformly on every Send; a drawn
	// hit is a silent, counted drop (send still reports success).
	LossProbability float64

	// Enabled gates the link entirely: disabled links drop every send.
	Enabled bool

	// QueueCapacity bounds both the tx and rx ring of the endpoint.
	QueueCapacity int
}

// DefaultEndpointConfig returns an enabled, lossless, zero-delay
// configuration with a modest queue depth.
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		Enabled:       true,
		QueueCapacity: 256,
	}
}

// EndpointStats holds lock-free counters for one endpoint (spec.md §9:
// "should be atomic counters ... to avoid taking a lock on every frame").
type EndpointStats struct {
	TxPackets atomic.Uint64
	TxBytes   atomic.Uint64
	TxDrops   atomic.Uint64
	RxPackets atomic.Uint64
	RxBytes   atomic.Uint64
	RxDrops   atomic.Uint64
	LossDrops atomic.Uint64
}

// EndpointStatsSnapshot is a point-in-time, non-atomic copy of
// EndpointStats for reporting over the control/metrics surface.
type EndpointStatsSnapshot struct {
	TxPackets uint64
	TxBytes   uint64
	TxDrops   uint64
	RxPackets uint64
	RxBytes   uint64
	RxDrops   uint64
	LossDrops uint64
}

// Snapshot copies the current counter values.
func (s *EndpointStats) Snapshot() EndpointStatsSnapshot {
	return EndpointStatsSnapshot{
		TxPackets: s.TxPackets.Load(),
		TxBytes:   s.TxBytes.Load(),
		TxDrops:   s.TxDrops.Load(),
		RxPackets: s.RxPackets.Load(),
		RxBytes:   s.RxBytes.Load(),
		RxDrops:   s.RxDrops.Load(),
		LossDrops: s.LossDrops.Load(),
	}
}

// Sink is the rx-delivery strategy installed on a started endpoint,
// modeled as a tagged variant (spec.md §9 "polymorphic sink object") since
// Go has no raw function-pointer-plus-context idiom to preserve directly.
type Sink interface {
	isSink()
}

// PollingSink leaves rx delivery to explicit Endpoint.Recv calls; Start
// with a PollingSink spawns no goroutine.
type PollingSink struct{}

func (PollingSink) isSink() {}

// CallbackSink drives Fn from a dedicated rx goroutine for every received
// frame, until the endpoint is stopped.
type CallbackSink struct {
	Fn func(Frame)
}

func (CallbackSink) isSink() {}

// Endpoint is one side of a virtual link: a pair of bounded queues plus
// the simulated transport behavior of Send (spec.md §4.D, grounded on
// virtual_link.h's vlink_endpoint_t and the goroutine/select run-loop
// idiom of _examples/dantte-lp-gobfd/internal/bfd/session.go).
type Endpoint struct {
	ID uint32

	mu   sync.Mutex
	cfg  EndpointConfig
	peer *Endpoint

	txQueue chan Frame
	rxQueue chan Frame

	Stats EndpointStats

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEndpoint creates an endpoint in the "created" state (spec.md §4.E
// state machine): not yet started, not yet connected.
func NewEndpoint(id uint32, cfg EndpointConfig) *Endpoint {
	return &Endpoint{
		ID:      id,
		cfg:     cfg,
		txQueue: make(chan Frame, cfg.QueueCapacity),
		rxQueue: make(chan Frame, cfg.QueueCapacity),
	}
}

// SetConfig replaces the endpoint's live configuration.
func (e *Endpoint) SetConfig(cfg EndpointConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *Endpoint) config() EndpointConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

func (e *Endpoint) peerEndpoint() *Endpoint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peer
}

// Send simulates transmitting f: disabled-link drop, probabilistic loss,
// simulated delay, tx-ring enqueue, and (if connected) mirrored enqueue
// into the peer's rx ring (spec.md §4.D send path, steps 1-5). Send never
// returns an error for a simulated drop — loss and queue-full are counted
// conditions, not failures.
func (e *Endpoint) Send(f Frame) error {
	cfg := e.config()

	if !cfg.Enabled {
		e.Stats.TxDrops.Add(1)
		return nil
	}

	if cfg.LossProbability > 0 && rand.Float64() < cfg.LossProbability {
		e.Stats.LossDrops.Add(1)
		return nil
	}

	if delay := simulatedDelay(cfg); delay > 0 {
		time.Sleep(delay)
	}

	select {
	case e.txQueue <- f:
	default:
		e.Stats.TxDrops.Add(1)
		return nil
	}
	e.Stats.TxPackets.Add(1)
	e.Stats.TxBytes.Add(uint64(f.Len())) //nolint:gosec // frame length is never negative

	peer := e.peerEndpoint()
	if peer == nil {
		return nil
	}

	select {
	case peer.rxQueue <- f:
		peer.Stats.RxPackets.Add(1)
		peer.Stats.RxBytes.Add(uint64(f.Len())) //nolint:gosec // frame length is never negative
	default:
		peer.Stats.RxDrops.Add(1)
	}

	return nil
}

// simulatedDelay computes base + extra + uniform(-jitter, +jitter),
// clamped to a non-negative duration (spec.md §4.D step 3).
func simulatedDelay(cfg EndpointConfig) time.Duration {
	var jitter int64
	if cfg.JitterUs > 0 {
		jitter = rand.Int64N(2*cfg.JitterUs+1) - cfg.JitterUs
	}

	total := cfg.BaseLatencyUs + cfg.ExtraDelayUs + jitter
	if total < 0 {
		total = 0
	}
	return time.Duration(total) * time.Microsecond
}

// Recv waits up to timeout for a frame on the rx queue, the polling
// receive path (spec.md §4.D). Returns ErrRecvTimeout on deadline or
// context cancellation, including during endpoint shutdown. A timeout of
// zero or less checks the rx queue once without waiting.
func (e *Endpoint) Recv(ctx context.Context, timeout time.Duration) (Frame, error) {
	if timeout <= 0 {
		select {
		case f := <-e.rxQueue:
			return f, nil
		default:
			return Frame{}, ErrRecvTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-e.rxQueue:
		return f, nil
	case <-timer.C:
		return Frame{}, ErrRecvTimeout
	case <-ctx.Done():
		return Frame{}, ErrRecvTimeout
	}
}

// Start transitions the endpoint to "started". Idempotent when already
// running. If sink is a CallbackSink, a dedicated rx goroutine is spawned
// to drain the rx queue and invoke it; a PollingSink spawns nothing and
// leaves delivery to explicit Recv calls (spec.md §4.D, §9).
func (e *Endpoint) Start(sink Sink) error {
	if !e.running.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.Lock()
	e.stopCh = make(chan struct{})
	stop := e.stopCh
	e.mu.Unlock()

	cb, ok := sink.(CallbackSink)
	if !ok {
		return nil
	}

	e.wg.Add(1)
	go e.runCallback(cb, stop)
	return nil
}

func (e *Endpoint) runCallback(cb CallbackSink, stop chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-stop:
			return
		case f := <-e.rxQueue:
			cb.Fn(f)
		}
	}
}

// Stop transitions the endpoint to "stopped", signalling and joining any
// callback goroutine. Idempotent when already stopped.
func (e *Endpoint) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}

	e.mu.Lock()
	stop := e.stopCh
	e.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	e.wg.Wait()
}

// Running reports the endpoint's current started/stopped state.
func (e *Endpoint) Running() bool { return e.running.Load() }

// Link wires two endpoints so each one's Send mirrors into the other's rx
// queue. Connect is one-shot (spec.md §4.E state machine:
// disconnected -> connected). This replaces the source's implicit
// peer_id = link_id ^ 1 mirroring (spec.md §9 REDESIGN FLAG) with an
// explicit, single connection.
type Link struct {
	mu        sync.Mutex
	connected bool
	A, B      *Endpoint
}

// NewLink returns a disconnected link.
func NewLink() *Link { return &Link{} }

// Connect wires a and b together. Returns ErrAlreadyConnected if this
// link has already connected a pair of endpoints.
func (l *Link) Connect(a, b *Endpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return ErrAlreadyConnected
	}

	a.mu.Lock()
	a.peer = b
	a.mu.Unlock()

	b.mu.Lock()
	b.peer = a
	b.mu.Unlock()

	l.A, l.B = a, b
	l.connected = true
	return nil
}

// Connected reports whether Connect has been called on this link.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}
