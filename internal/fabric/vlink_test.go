package fabric_test

import (
	"context"
	"testing"
	"time"

	"github.com/netfabric/govswitch/internal/fabric"
)

func connectedEndpoints(t *testing.T, cfg fabric.EndpointConfig) (*fabric.Endpoint, *fabric.Endpoint) {
	t.Helper()

	a := fabric.NewEndpoint(1, cfg)
	b := fabric.NewEndpoint(2, cfg)
	if err := fabric.NewLink().Connect(a, b); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a, b
}

func TestEndpoint_SendRecvRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := fabric.DefaultEndpointConfig()
	a, b := connectedEndpoints(t, cfg)

	payload := fabric.NewFrame([]byte{1, 2, 3, 4})
	if err := a.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := b.Recv(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got.Len() != payload.Len() {
		t.Errorf("Recv length = %d, want %d", got.Len(), payload.Len())
	}
}

// TestEndpoint_StatsInvariant checks tx+drops >= attempts and rx <= peer.tx,
// the accounting invariant from spec.md §8.
func TestEndpoint_StatsInvariant(t *testing.T) {
	t.Parallel()

	cfg := fabric.EndpointConfig{Enabled: true, QueueCapacity: 4}
	a, b := connectedEndpoints(t, cfg)

	const attempts = 20
	for i := 0; i < attempts; i++ {
		if err := a.Send(fabric.NewFrame([]byte{byte(i)})); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	snap := a.Stats.Snapshot()
	if snap.TxPackets+snap.TxDrops != attempts {
		t.Errorf("tx(%d)+drops(%d) = %d, want %d", snap.TxPackets, snap.TxDrops, snap.TxPackets+snap.TxDrops, attempts)
	}

	peerSnap := b.Stats.Snapshot()
	if peerSnap.RxPackets > snap.TxPackets {
		t.Errorf("peer rx(%d) exceeds sender tx(%d)", peerSnap.RxPackets, snap.TxPackets)
	}
}

func TestEndpoint_JitterZero(t *testing.T) {
	t.Parallel()

	cfg := fabric.EndpointConfig{
		Enabled:       true,
		QueueCapacity: 8,
		BaseLatencyUs: 2000,
	}
	a, b := connectedEndpoints(t, cfg)

	start := time.Now()
	if err := a.Send(fabric.NewFrame([]byte{0xAA})); err != nil {
		t.Fatalf("Send: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < 2*time.Millisecond {
		t.Errorf("Send returned after %v, want at least the 2ms base latency", elapsed)
	}

	if _, err := b.Recv(context.Background(), time.Second); err != nil {
		t.Fatalf("Recv: %v", err)
	}
}

func TestEndpoint_LossBoundsZero(t *testing.T) {
	t.Parallel()

	cfg := fabric.EndpointConfig{Enabled: true, QueueCapacity: 64, LossProbability: 0}
	a, b := connectedEndpoints(t, cfg)

	for i := 0; i < 50; i++ {
		if err := a.Send(fabric.NewFrame([]byte{byte(i)})); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	if snap := a.Stats.Snapshot(); snap.LossDrops != 0 {
		t.Errorf("LossDrops = %d, want 0 with LossProbability=0", snap.LossDrops)
	}
	_ = b
}

func TestEndpoint_LossBoundsOne(t *testing.T) {
	t.Parallel()

	cfg := fabric.EndpointConfig{Enabled: true, QueueCapacity: 64, LossProbability: 1}
	a, b := connectedEndpoints(t, cfg)

	for i := 0; i < 50; i++ {
		if err := a.Send(fabric.NewFrame([]byte{byte(i)})); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	if snap := b.Stats.Snapshot(); snap.RxPackets != 0 {
		t.Errorf("peer RxPackets = %d, want 0 with LossProbability=1", snap.RxPackets)
	}
}

func TestEndpoint_DisabledDropsEverything(t *testing.T) {
	t.Parallel()

	cfg := fabric.EndpointConfig{Enabled: false, QueueCapacity: 8}
	a, _ := connectedEndpoints(t, cfg)

	if err := a.Send(fabric.NewFrame([]byte{1})); err != nil {
		t.Fatalf("Send: %v", err)
	}

	snap := a.Stats.Snapshot()
	if snap.TxDrops != 1 || snap.TxPackets != 0 {
		t.Errorf("disabled endpoint stats = %+v, want one tx drop and zero tx packets", snap)
	}
}

func TestEndpoint_StartStopIdempotent(t *testing.T) {
	t.Parallel()

	ep := fabric.NewEndpoint(1, fabric.DefaultEndpointConfig())

	received := make(chan fabric.Frame, 1)
	sink := fabric.CallbackSink{Fn: func(f fabric.Frame) { received <- f }}

	if err := ep.Start(sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ep.Start(sink); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !ep.Running() {
		t.Fatalf("Running() = false after Start")
	}

	ep.Stop()
	ep.Stop()
	if ep.Running() {
		t.Errorf("Running() = true after Stop")
	}
}

func TestLink_ConnectOnceOnly(t *testing.T) {
	t.Parallel()

	a := fabric.NewEndpoint(1, fabric.DefaultEndpointConfig())
	b := fabric.NewEndpoint(2, fabric.DefaultEndpointConfig())
	c := fabric.NewEndpoint(3, fabric.DefaultEndpointConfig())

	link := fabric.NewLink()
	if err := link.Connect(a, b); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := link.Connect(a, c); err == nil {
		t.Errorf("second Connect on same link: err = nil, want ErrAlreadyConnected")
	}
}
