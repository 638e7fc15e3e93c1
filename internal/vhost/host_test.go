package vhost_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/netfabric/govswitch/internal/fabric"
	"github.com/netfabric/govswitch/internal/vhost"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func connectedPair(t *testing.T) (*fabric.Endpoint, *fabric.Endpoint) {
	t.Helper()
	a := fabric.NewEndpoint(1, fabric.DefaultEndpointConfig())
	b := fabric.NewEndpoint(2, fabric.DefaultEndpointConfig())
	if err := fabric.NewLink().Connect(a, b); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a, b
}

func TestHost_SendUpdatesStats(t *testing.T) {
	t.Parallel()

	ep, peer := connectedPair(t)
	host := vhost.NewHost(vhost.Config{Name: "h1", MAC: fabric.MAC{0x02, 0, 0, 0, 0, 1}, IP: vhost.IPv4{10, 0, 0, 1}}, ep, discardLogger())

	if err := host.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	snap := host.Stats.Snapshot()
	if snap.TxPackets != 1 {
		t.Errorf("TxPackets = %d, want 1", snap.TxPackets)
	}

	if _, err := peer.Recv(context.Background(), time.Second); err != nil {
		t.Fatalf("peer Recv: %v", err)
	}
}

func TestHost_RunWithoutPktgenBlocksUntilCancel(t *testing.T) {
	t.Parallel()

	ep, _ := connectedPair(t)
	host := vhost.NewHost(vhost.Config{Name: "h1", MAC: fabric.MAC{0x02, 0, 0, 0, 0, 1}, IP: vhost.IPv4{10, 0, 0, 1}}, ep, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestHost_PktgenSendsARPThenUDP(t *testing.T) {
	t.Parallel()

	hostEp, peerEp := connectedPair(t)
	host := vhost.NewHost(vhost.Config{
		Name: "h1",
		MAC:  fabric.MAC{0x02, 0, 0, 0, 0, 1},
		IP:   vhost.IPv4{10, 0, 0, 1},
	}, hostEp, discardLogger())

	host.ConfigurePktgen(vhost.PktgenConfig{
		Enabled: true,
		PktSize: 64,
		PPS:     200,
		Count:   3,
		DstMAC:  fabric.MAC{0x02, 0, 0, 0, 0, 2},
		DstIP:   vhost.IPv4{10, 0, 0, 2},
		DstPort: 9999,
		SrcPort: 5000,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()

	arpFrame, err := peerEp.Recv(context.Background(), 500*time.Millisecond)
	if err != nil {
		t.Fatalf("expected bootstrap ARP frame: %v", err)
	}
	if _, err := vhost.DecodeARP(arpFrame.Buf); err != nil {
		t.Errorf("first frame was not ARP: %v", err)
	}

	for i := 0; i < 3; i++ {
		f, err := peerEp.Recv(context.Background(), 500*time.Millisecond)
		if err != nil {
			t.Fatalf("expected udp packet %d: %v", i, err)
		}
		if _, err := vhost.DecodeUDPPacket(f.Buf); err != nil {
			t.Errorf("packet %d was not decodable as UDP: %v", i, err)
		}
	}

	<-done
}

func TestHost_PacketHandlerInvoked(t *testing.T) {
	t.Parallel()

	hostEp, peerEp := connectedPair(t)
	host := vhost.NewHost(vhost.Config{
		Name: "h1",
		MAC:  fabric.MAC{0x02, 0, 0, 0, 0, 1},
		IP:   vhost.IPv4{10, 0, 0, 1},
	}, hostEp, discardLogger())

	var mu sync.Mutex
	var received []vhost.UDPPacket
	host.SetPacketHandler(func(p vhost.UDPPacket) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- host.Run(ctx) }()

	pkt, err := vhost.BuildUDPPacket(
		fabric.MAC{0x02, 0, 0, 0, 0, 1}, fabric.MAC{0x02, 0, 0, 0, 0, 2},
		vhost.IPv4{10, 0, 0, 1}, vhost.IPv4{10, 0, 0, 2}, 1, 2, []byte("hi"))
	if err != nil {
		t.Fatalf("BuildUDPPacket: %v", err)
	}
	if err := peerEp.Send(fabric.NewFrame(pkt)); err != nil {
		t.Fatalf("peerEp.Send: %v", err)
	}

	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("handler invocations = %d, want 1", len(received))
	}
	if string(received[0].Payload) != "hi" {
		t.Errorf("payload = %q, want %q", received[0].Payload, "hi")
	}
}
