package vhost

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/netfabric/govswitch/internal/fabric"
)

// arpGraceWindow is the delay after sending a bootstrap ARP request
// before UDP traffic generation begins (spec.md §9 Open Question,
// resolved in favor of the ARP-bootstrap variant; grounded on
// virtual_host.c's pktgen loop: "usleep(100000); /* 100ms */").
const arpGraceWindow = 100 * time.Millisecond

// Stats holds lock-free per-host counters (spec.md §9: atomic counters
// over per-frame locking).
type Stats struct {
	TxPackets atomic.Uint64
	TxBytes   atomic.Uint64
	RxPackets atomic.Uint64
	RxBytes   atomic.Uint64
	TxErrors  atomic.Uint64
	RxErrors  atomic.Uint64
	RxDrops   atomic.Uint64
}

// StatsSnapshot is a non-atomic copy of Stats for reporting.
type StatsSnapshot struct {
	TxPackets, TxBytes, RxPackets, RxBytes, TxErrors, RxErrors, RxDrops uint64
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TxPackets: s.TxPackets.Load(),
		TxBytes:   s.TxBytes.Load(),
		RxPackets: s.RxPackets.Load(),
		RxBytes:   s.RxBytes.Load(),
		TxErrors:  s.TxErrors.Load(),
		RxErrors:  s.RxErrors.Load(),
		RxDrops:   s.RxDrops.Load(),
	}
}

// Config identifies a virtual host (spec.md §6, grounded on
// virtual_host.h's vhost_config_t).
type Config struct {
	Name string
	MAC  fabric.MAC
	IP   IPv4
}

// PktgenConfig parameterizes the UDP packet generator (spec.md §6 CLI
// surface: -p enable, -r pps, -c count, grounded on
// virtual_host.h's vhost_pktgen_config_t).
type PktgenConfig struct {
	Enabled bool
	PktSize int
	PPS     float64
	Count   int // 0 = infinite
	DstMAC  fabric.MAC
	DstIP   IPv4
	DstPort uint16
	SrcPort uint16
}

// Host is a virtual host attached to one switch port via a virtual-link
// endpoint (spec.md §6, grounded on virtual_host.c's vhost_instance_t and
// the goroutine/select run-loop idiom of
// _examples/dantte-lp-gobfd/internal/bfd/session.go).
type Host struct {
	cfg    Config
	pktgen PktgenConfig
	ep     *fabric.Endpoint
	log    *slog.Logger

	Stats Stats

	handler func(UDPPacket)
}

// NewHost constructs a host bound to ep, the virtual-link endpoint
// connecting it to its switch port.
func NewHost(cfg Config, ep *fabric.Endpoint, log *slog.Logger) *Host {
	return &Host{
		cfg: cfg,
		ep:  ep,
		log: log.With(slog.String("host", cfg.Name), slog.String("ip", cfg.IP.String())),
	}
}

// ConfigurePktgen installs the packet generator parameters, replacing any
// previous configuration (spec.md §6 "configure packet generator").
func (h *Host) ConfigurePktgen(cfg PktgenConfig) {
	h.pktgen = cfg
}

// SetPacketHandler installs a callback invoked for every decoded UDP
// packet received while the host is running (virtual_host.h's
// pkt_handler/pkt_handler_ctx, collapsed into a closure per Go idiom).
func (h *Host) SetPacketHandler(fn func(UDPPacket)) {
	h.handler = fn
}

// Send transmits an arbitrary frame over the host's endpoint.
func (h *Host) Send(frame []byte) error {
	if err := h.ep.Send(fabric.NewFrame(frame)); err != nil {
		h.Stats.TxErrors.Add(1)
		return fmt.Errorf("host %s: send: %w", h.cfg.Name, err)
	}
	h.Stats.TxPackets.Add(1)
	h.Stats.TxBytes.Add(uint64(len(frame))) //nolint:gosec // frame length is never negative
	return nil
}

// Run starts the host's rx-delivery loop and, if the packet generator is
// enabled, its ARP-bootstrap-then-UDP transmit loop, until ctx is
// cancelled (spec.md §5 "Virtual hosts spawn one packet-generator thread
// each").
func (h *Host) Run(ctx context.Context) error {
	if err := h.ep.Start(fabric.CallbackSink{Fn: h.onFrame}); err != nil {
		return fmt.Errorf("host %s: start endpoint: %w", h.cfg.Name, err)
	}
	defer h.ep.Stop()

	if !h.pktgen.Enabled {
		<-ctx.Done()
		return nil
	}

	return h.runPktgen(ctx)
}

func (h *Host) onFrame(f fabric.Frame) {
	h.Stats.RxPackets.Add(1)
	h.Stats.RxBytes.Add(uint64(f.Len())) //nolint:gosec // frame length is never negative

	pkt, err := DecodeUDPPacket(f.Buf)
	if err != nil {
		h.Stats.RxDrops.Add(1)
		return
	}
	if h.handler != nil {
		h.handler(pkt)
	}
}

// runPktgen sends one bootstrap ARP request, waits the grace window, then
// emits UDP packets at pps until Count is reached or ctx is cancelled
// (spec.md §9 Open Question resolution; grounded on virtual_host.c's
// pktgen_thread).
func (h *Host) runPktgen(ctx context.Context) error {
	arp := BuildARPRequest(h.cfg.MAC, h.cfg.IP, h.pktgen.DstIP)
	if err := h.Send(arp); err != nil {
		h.log.Warn("failed to send bootstrap arp request", slog.String("error", err.Error()))
	} else {
		h.log.Info("sent bootstrap arp request", slog.String("target_ip", h.pktgen.DstIP.String()))
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(arpGraceWindow):
	}

	pps := h.pktgen.PPS
	if pps <= 0 {
		pps = 1
	}
	interval := time.Duration(float64(time.Second) / pps)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	payload := make([]byte, max(h.pktgen.PktSize-ethernetHeaderLen-ipv4HeaderLen-udpHeaderLen, 0))
	sent := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pkt, err := BuildUDPPacket(h.pktgen.DstMAC, h.cfg.MAC, h.pktgen.DstIP, h.cfg.IP,
				h.pktgen.DstPort, h.pktgen.SrcPort, payload)
			if err != nil {
				h.log.Warn("build udp packet failed", slog.String("error", err.Error()))
				continue
			}
			if err := h.Send(pkt); err != nil {
				h.log.Warn("pktgen send failed", slog.String("error", err.Error()))
			}

			sent++
			if h.pktgen.Count > 0 && sent >= h.pktgen.Count {
				return nil
			}
		}
	}
}
