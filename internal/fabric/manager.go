package fabric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Sentinel errors for Manager operations, generalized from the teacher's
// session-registry errors (internal/bfd/manager.go).
var (
	// ErrSwitchNotFound indicates no switch is registered under the given
	// switch ID.
	ErrSwitchNotFound = errors.New("switch not found")

	// ErrDuplicateSwitch indicates a switch is already registered under
	// the given switch ID.
	ErrDuplicateSwitch = errors.New("duplicate switch id")
)

// stateChangeChSize buffers the aggregated notification channel so a
// burst of switch registrations/removals never blocks a caller
// (grounded on the teacher's notifyChSize).
const stateChangeChSize = 64

// StateChangeKind names what happened to a switch registration.
type StateChangeKind int

const (
	SwitchAdded StateChangeKind = iota
	SwitchRemoved
)

// StateChange is emitted on the Manager's notification channel whenever a
// switch is registered or removed.
type StateChange struct {
	Kind     StateChangeKind
	SwitchID int
}

// SwitchSnapshot is a read-only view of one switch's identity and
// counters, for the control/monitoring surface (teacher:
// SessionSnapshot).
type SwitchSnapshot struct {
	SwitchID   int                    `json:"switch_id"`
	InstanceID string                 `json:"instance_id"`
	PortCount  int                    `json:"port_count"`
	Counters   SwitchCountersSnapshot `json:"counters"`
}

// SwitchCountersSnapshot is a non-atomic copy of SwitchCounters.
type SwitchCountersSnapshot struct {
	RxPackets     uint64 `json:"rx_packets"`
	TxPackets     uint64 `json:"tx_packets"`
	Drops         uint64 `json:"drops"`
	TTLExpired    uint64 `json:"ttl_expired"`
	QoSClassified uint64 `json:"qos_classified"`
	Flooded       uint64 `json:"flooded"`
	Unicast       uint64 `json:"unicast"`
	ServiceCycles uint64 `json:"service_cycles"`
}

func snapshotCounters(c *SwitchCounters) SwitchCountersSnapshot {
	return SwitchCountersSnapshot{
		RxPackets:     c.RxPackets.Load(),
		TxPackets:     c.TxPackets.Load(),
		Drops:         c.Drops.Load(),
		TTLExpired:    c.TTLExpired.Load(),
		QoSClassified: c.QoSClassified.Load(),
		Flooded:       c.Flooded.Load(),
		Unicast:       c.Unicast.Load(),
		ServiceCycles: c.ServiceCycles.Load(),
	}
}

// Manager owns the set of switch instances in one process, keyed by
// switch ID, and supervises their forwarding loops as one cancellable
// group (generalized from the teacher's Manager, internal/bfd/manager.go,
// which plays the analogous role for BFD sessions).
type Manager struct {
	mu       sync.Mutex
	switches map[int]*Switch
	notifyCh chan StateChange
	log      *slog.Logger
}

// NewManager returns an empty switch registry.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		switches: make(map[int]*Switch),
		notifyCh: make(chan StateChange, stateChangeChSize),
		log:      log,
	}
}

// Register adds sw to the registry under its SwitchID. Returns
// ErrDuplicateSwitch if that ID is already registered.
func (m *Manager) Register(sw *Switch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.switches[sw.SwitchID]; exists {
		return fmt.Errorf("register switch %d: %w", sw.SwitchID, ErrDuplicateSwitch)
	}
	m.switches[sw.SwitchID] = sw

	m.notify(StateChange{Kind: SwitchAdded, SwitchID: sw.SwitchID})
	return nil
}

// Remove unregisters the switch with the given ID.
func (m *Manager) Remove(switchID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.switches[switchID]; !exists {
		return fmt.Errorf("remove switch %d: %w", switchID, ErrSwitchNotFound)
	}
	delete(m.switches, switchID)

	m.notify(StateChange{Kind: SwitchRemoved, SwitchID: switchID})
	return nil
}

func (m *Manager) notify(sc StateChange) {
	select {
	case m.notifyCh <- sc:
	default:
		m.log.Warn("state change channel full, dropping notification",
			slog.Int("switch_id", sc.SwitchID))
	}
}

// Lookup returns the switch registered under switchID.
func (m *Manager) Lookup(switchID int) (*Switch, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.switches[switchID]
	return sw, ok
}

// Switches returns a snapshot of every registered switch's identity and
// counters.
func (m *Manager) Switches() []SwitchSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]SwitchSnapshot, 0, len(m.switches))
	for _, sw := range m.switches {
		out = append(out, SwitchSnapshot{
			SwitchID:   sw.SwitchID,
			InstanceID: sw.ID.String(),
			PortCount:  len(sw.Ports()),
			Counters:   snapshotCounters(&sw.Counters),
		})
	}
	return out
}

// StateChanges returns the read-only notification channel for switch
// registration/removal events.
func (m *Manager) StateChanges() <-chan StateChange {
	return m.notifyCh
}

// Run drives every registered switch's forwarding loop concurrently as
// one supervised group (teacher: runServers in cmd/gobfd/main.go, using
// errgroup so any one switch's unexpected error cancels the rest).
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	switches := make([]*Switch, 0, len(m.switches))
	for _, sw := range m.switches {
		switches = append(switches, sw)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sw := range switches {
		sw := sw
		g.Go(func() error {
			return sw.Run(gctx)
		})
	}
	return g.Wait()
}
