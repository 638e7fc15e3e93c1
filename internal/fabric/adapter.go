package fabric

import (
	"context"
	"sync"
)

// IngressEgressAdapter is the pluggable seam between a switch port and
// whatever actually moves bytes: an in-process virtual link, or (out of
// scope for this module, per spec.md §1) a native raw-socket/NIC driver
// (spec.md §6).
type IngressEgressAdapter interface {
	// RecvBurst returns up to max frames waiting on port, non-blocking.
	// An empty or short slice means no more frames are currently ready.
	RecvBurst(port int, max int) [][]byte

	// SendBurst submits frames for transmission on port and returns how
	// many were accepted; the caller is responsible for the remainder.
	SendBurst(port int, frames [][]byte) int

	// PortCount reports how many ports this adapter backs.
	PortCount() int

	// PortMAC returns the hardware address presented on port.
	PortMAC(port int) MAC

	// EnablePromiscuous puts port into promiscuous mode.
	EnablePromiscuous(port int)
}

// LoopbackAdapter is the in-process default IngressEgressAdapter: each
// port is backed by one virtual-link Endpoint (spec.md §4.D), so
// RecvBurst/SendBurst simply poll/push that endpoint's queues
// (SPEC_FULL.md §8).
type LoopbackAdapter struct {
	mu          sync.Mutex
	endpoints   map[int]*Endpoint
	mac         map[int]MAC
	promiscuous map[int]bool
}

// NewLoopbackAdapter returns an adapter with no ports bound yet.
func NewLoopbackAdapter() *LoopbackAdapter {
	return &LoopbackAdapter{
		endpoints:   make(map[int]*Endpoint),
		mac:         make(map[int]MAC),
		promiscuous: make(map[int]bool),
	}
}

// BindPort associates port with ep and the MAC address presented there.
func (a *LoopbackAdapter) BindPort(port int, ep *Endpoint, mac MAC) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endpoints[port] = ep
	a.mac[port] = mac
}

func (a *LoopbackAdapter) endpoint(port int) *Endpoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endpoints[port]
}

// RecvBurst drains up to max frames already queued on the endpoint's rx
// ring without blocking.
func (a *LoopbackAdapter) RecvBurst(port int, max int) [][]byte {
	ep := a.endpoint(port)
	if ep == nil {
		return nil
	}

	out := make([][]byte, 0, max)
	for len(out) < max {
		f, err := ep.Recv(context.Background(), 0)
		if err != nil {
			break
		}
		out = append(out, f.Buf)
	}
	return out
}

// SendBurst pushes frames onto the endpoint's Send path, which applies
// the configured latency/jitter/loss simulation per frame.
func (a *LoopbackAdapter) SendBurst(port int, frames [][]byte) int {
	ep := a.endpoint(port)
	if ep == nil {
		return 0
	}

	sent := 0
	for _, buf := range frames {
		if err := ep.Send(NewFrame(buf)); err == nil {
			sent++
		}
	}
	return sent
}

// PortCount reports how many ports have been bound.
func (a *LoopbackAdapter) PortCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.endpoints)
}

// PortMAC returns the MAC address bound to port.
func (a *LoopbackAdapter) PortMAC(port int) MAC {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mac[port]
}

// EnablePromiscuous records that port should accept frames regardless of
// destination MAC. The loopback adapter has no hardware filter to
// disable, so this is bookkeeping only.
func (a *LoopbackAdapter) EnablePromiscuous(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.promiscuous[port] = true
}

// Promiscuous reports whether EnablePromiscuous was called for port.
func (a *LoopbackAdapter) Promiscuous(port int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.promiscuous[port]
}
