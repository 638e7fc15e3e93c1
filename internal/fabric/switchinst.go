package fabric

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MaxPorts is the largest number of ports a single switch instance owns
// (spec.md §3: "a switch owns a fixed set of ports (<=11)").
const MaxPorts = 11

// PortKind classifies what a port connects to.
type PortKind int

const (
	// PortKindHost faces a virtual host or external adapter.
	PortKindHost PortKind = iota
	// PortKindSwitchLink faces another switch instance over a virtual link.
	PortKindSwitchLink
)

// PortStats breaks ingress accounting down per port (SPEC_FULL.md §7,
// grounded on original_source/three_port_switch/three_port_switch.c's
// port_stats struct, beyond the terse aggregate spec.md §3 names).
type PortStats struct {
	RxPackets   atomic.Uint64
	RxBytes     atomic.Uint64
	RxBroadcast atomic.Uint64
	RxErrors    atomic.Uint64
}

// Port is one physical-equivalent attachment point on a switch (spec.md
// §3).
type Port struct {
	Index       int
	Kind        PortKind
	Name        string
	Configured  bool
	VLANPriority bool // PCP wins over DSCP when true (spec.md §4.A)

	Queue    *PriorityQueue
	Adapter  IngressEgressAdapter
	Stats    PortStats
}

// SwitchCounters are process-lifetime aggregate counters for one switch
// instance (spec.md §3, plus the flood/unicast/service-cycle split
// supplemented from original_source/ per SPEC_FULL.md §7).
type SwitchCounters struct {
	RxPackets      atomic.Uint64
	TxPackets      atomic.Uint64
	Drops          atomic.Uint64
	TTLExpired     atomic.Uint64
	QoSClassified  atomic.Uint64
	Flooded        atomic.Uint64
	Unicast        atomic.Uint64
	ServiceCycles  atomic.Uint64
}

// SwitchConfig parameterizes one switch instance at construction.
type SwitchConfig struct {
	// SwitchID is the 1-based operator-facing identifier (spec.md §6
	// CLI surface: --switch-id).
	SwitchID int

	// BurstSize bounds how many frames are drained per port per service
	// cycle (spec.md §4.E).
	BurstSize int

	// QueueCapacity bounds each of the 8 per-port priority rings.
	QueueCapacity int

	// MACTableCapacity is the fixed MAC table size (spec.md §3: 256 or 1024).
	MACTableCapacity int
}

// DefaultSwitchConfig returns typical capacities named in spec.md §3.
func DefaultSwitchConfig(switchID int) SwitchConfig {
	return SwitchConfig{
		SwitchID:         switchID,
		BurstSize:        32,
		QueueCapacity:    512,
		MACTableCapacity: 256,
	}
}

// Switch is one userspace switch instance: a fixed set of ports, a shared
// MAC table, and a forwarding loop that alternates ingress draining with
// egress scheduling (spec.md §4.E).
type Switch struct {
	ID       uuid.UUID
	SwitchID int

	cfg      SwitchConfig
	log      *slog.Logger
	ports    []*Port
	macTable *MACTable

	Counters SwitchCounters

	startedAt time.Time
}

// NewSwitch constructs a switch instance with no ports attached yet; call
// AddPort for each configured port before Run.
func NewSwitch(cfg SwitchConfig, log *slog.Logger) *Switch {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 32
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 512
	}
	if cfg.MACTableCapacity <= 0 {
		cfg.MACTableCapacity = 256
	}

	id := uuid.New()
	return &Switch{
		ID:       id,
		SwitchID: cfg.SwitchID,
		cfg:      cfg,
		log:      log.With(slog.Int("switch_id", cfg.SwitchID), slog.String("instance_id", id.String())),
		macTable: NewMACTable(cfg.MACTableCapacity),
	}
}

// AddPort attaches a configured port backed by adapter. Returns an error
// if the switch already owns MaxPorts ports or the index is a duplicate.
func (s *Switch) AddPort(index int, kind PortKind, name string, adapter IngressEgressAdapter, vlanPriority bool) (*Port, error) {
	if len(s.ports) >= MaxPorts {
		return nil, fmt.Errorf("switch %d: cannot add port %d: already at MaxPorts=%d", s.SwitchID, index, MaxPorts)
	}
	for _, p := range s.ports {
		if p.Index == index {
			return nil, fmt.Errorf("switch %d: duplicate port index %d", s.SwitchID, index)
		}
	}

	port := &Port{
		Index:        index,
		Kind:         kind,
		Name:         name,
		Configured:   true,
		VLANPriority: vlanPriority,
		Queue:        NewPriorityQueue(s.cfg.QueueCapacity),
		Adapter:      adapter,
	}
	s.ports = append(s.ports, port)
	return port, nil
}

// MACTable returns the switch's shared MAC table, e.g. for LoadStatic.
func (s *Switch) MACTable() *MACTable { return s.macTable }

// Ports returns the switch's configured ports in addition order.
func (s *Switch) Ports() []*Port { return s.ports }

// ValidPort reports whether portIndex names a configured port on this
// switch, for use as a PortValidator.
func (s *Switch) ValidPort(portIndex int) bool {
	for _, p := range s.ports {
		if p.Index == portIndex {
			return true
		}
	}
	return false
}

// Uptime returns how long Run has been driving this switch, for
// operational visibility (SPEC_FULL.md §7, supplemented from
// original_source/'s sim_stats printer).
func (s *Switch) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// Run drives the switch's forwarding loop until ctx is cancelled: for
// each port, drain up to BurstSize ingress frames, process them
// (TTL/classify/lookup/enqueue-or-flood/learn), then run the scheduler on
// every egress port and hand its output to the port's adapter
// (spec.md §4.E).
func (s *Switch) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.serviceCycle()
		}
	}
}

func (s *Switch) serviceCycle() {
	for _, port := range s.ports {
		s.drainIngress(port)
	}
	for _, port := range s.ports {
		s.serviceEgress(port)
	}
	s.macTable.Age()
	s.Counters.ServiceCycles.Add(1)
}

func (s *Switch) drainIngress(port *Port) {
	if port.Adapter == nil {
		return
	}

	batch := port.Adapter.RecvBurst(port.Index, s.cfg.BurstSize)
	for _, buf := range batch {
		s.processIngress(port, NewFrame(buf))
	}
}

func (s *Switch) processIngress(ingress *Port, f Frame) {
	if f.Len() < EthernetHeaderLen {
		s.Counters.Drops.Add(1)
		ingress.Stats.RxErrors.Add(1)
		return
	}

	s.Counters.RxPackets.Add(1)
	ingress.Stats.RxPackets.Add(1)
	ingress.Stats.RxBytes.Add(uint64(f.Len())) //nolint:gosec // frame length is never negative

	dst := f.DstMAC()
	if dst.IsBroadcast() {
		ingress.Stats.RxBroadcast.Add(1)
	}

	result, err := f.RewriteTTL(ingress.VLANPriority)
	if err != nil {
		s.Counters.Drops.Add(1)
		ingress.Stats.RxErrors.Add(1)
		return
	}
	if result.Expired {
		s.Counters.TTLExpired.Add(1)
		s.Counters.Drops.Add(1)
		return
	}

	s.Counters.QoSClassified.Add(1)
	s.learn(f.SrcMAC(), ingress.Index)

	if dst.IsBroadcast() {
		s.flood(ingress, f, result.Priority)
		return
	}

	egressIdx, err := s.macTable.Lookup(dst)
	if err != nil {
		s.flood(ingress, f, result.Priority)
		return
	}

	egress := s.portByIndex(egressIdx)
	if egress == nil || egress == ingress {
		s.Counters.Drops.Add(1)
		return
	}

	s.Counters.Unicast.Add(1)
	if err := egress.Queue.Enqueue(result.Priority, f); err != nil {
		s.Counters.Drops.Add(1)
	}
}

func (s *Switch) learn(src MAC, port int) {
	if src.IsBroadcast() {
		return
	}
	if err := s.macTable.Insert(src, port, false, ""); err != nil {
		s.log.Debug("mac table insert failed", slog.String("error", err.Error()))
	}
}

// flood enqueues a clone of f on every port except ingress (spec.md §9:
// "the last recipient of a flood receives the original").
func (s *Switch) flood(ingress *Port, f Frame, priority uint8) {
	s.Counters.Flooded.Add(1)

	var recipients []*Port
	for _, p := range s.ports {
		if p != ingress {
			recipients = append(recipients, p)
		}
	}

	for i, p := range recipients {
		frame := f
		if i < len(recipients)-1 {
			frame = f.Clone()
		}
		if err := p.Queue.Enqueue(priority, frame); err != nil {
			s.Counters.Drops.Add(1)
		}
	}
}

func (s *Switch) serviceEgress(port *Port) {
	if port.Adapter == nil || port.Queue.Empty() {
		return
	}

	frames := port.Queue.Dequeue(s.cfg.BurstSize)
	if len(frames) == 0 {
		return
	}

	bufs := make([][]byte, len(frames))
	for i, fr := range frames {
		bufs[i] = fr.Buf
	}

	sent := port.Adapter.SendBurst(port.Index, bufs)
	s.Counters.TxPackets.Add(uint64(sent)) //nolint:gosec // sent is bounded by len(bufs)
	if sent < len(bufs) {
		s.Counters.Drops.Add(uint64(len(bufs) - sent)) //nolint:gosec // non-negative by construction
	}
}

func (s *Switch) portByIndex(index int) *Port {
	for _, p := range s.ports {
		if p.Index == index {
			return p
		}
	}
	return nil
}
