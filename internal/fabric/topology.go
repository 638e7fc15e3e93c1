package fabric

import (
	"fmt"
	"log/slog"
)

// TopologyKind names the logical graph shape over switch instances
// (spec.md §6 CLI surface: --topology {ring|line|mesh}).
type TopologyKind string

const (
	TopologyRing TopologyKind = "ring"
	TopologyLine TopologyKind = "line"
	TopologyMesh TopologyKind = "mesh"
)

// LinkSpec names one inter-switch edge to be built, by 0-based switch
// index and the port each side of the edge uses.
type LinkSpec struct {
	SwitchA, PortA int
	SwitchB, PortB int
}

// PlanEdges returns the inter-switch edges for kind over n switches
// (spec.md §4.E "Topology: logical graph over switches; each edge is a
// pair of virtual-link endpoints"). Switch-link ports are numbered
// starting at firstLinkPort on each switch, incrementing per additional
// edge that switch participates in.
func PlanEdges(kind TopologyKind, n int, firstLinkPort int) ([]LinkSpec, error) {
	if n < 2 {
		return nil, fmt.Errorf("topology %s: need at least 2 switches, got %d", kind, n)
	}

	nextPort := make([]int, n)
	for i := range nextPort {
		nextPort[i] = firstLinkPort
	}

	addEdge := func(a, b int) LinkSpec {
		spec := LinkSpec{SwitchA: a, PortA: nextPort[a], SwitchB: b, PortB: nextPort[b]}
		nextPort[a]++
		nextPort[b]++
		return spec
	}

	switch kind {
	case TopologyLine:
		edges := make([]LinkSpec, 0, n-1)
		for i := range n - 1 {
			edges = append(edges, addEdge(i, i+1))
		}
		return edges, nil

	case TopologyRing:
		if n < 3 {
			return nil, fmt.Errorf("ring topology needs at least 3 switches, got %d", n)
		}
		edges := make([]LinkSpec, 0, n)
		for i := range n {
			edges = append(edges, addEdge(i, (i+1)%n))
		}
		return edges, nil

	case TopologyMesh:
		edges := make([]LinkSpec, 0, n*(n-1)/2)
		for i := range n {
			for j := i + 1; j < n; j++ {
				edges = append(edges, addEdge(i, j))
			}
		}
		return edges, nil

	default:
		return nil, fmt.Errorf("unknown topology kind %q", kind)
	}
}

// Topology holds the switches and inter-switch links it was built with.
// It has no teardown method of its own.
type Topology struct {
	Kind     TopologyKind
	Switches []*Switch
	links    []*Link
}

// BuildTopology constructs n switch instances, wires them per kind using
// in-process loopback adapters on both the inter-switch and
// firstLinkPort..host ports, and returns the assembled Topology. Each
// switch additionally gets one host-facing port at index 0.
func BuildTopology(kind TopologyKind, n int, switchCfg func(switchID int) SwitchConfig, log *slog.Logger) (*Topology, error) {
	const hostPort = 0
	const firstLinkPort = 1

	edges, err := PlanEdges(kind, n, firstLinkPort)
	if err != nil {
		return nil, err
	}

	switches := make([]*Switch, n)
	hostAdapters := make([]*LoopbackAdapter, n)
	for i := range n {
		sw := NewSwitch(switchCfg(i+1), log)
		hostAdapter := NewLoopbackAdapter()
		hostEp := NewEndpoint(0, DefaultEndpointConfig())
		hostAdapter.BindPort(hostPort, hostEp, hostMAC(i))
		if _, err := sw.AddPort(hostPort, PortKindHost, "host", hostAdapter, false); err != nil {
			return nil, err
		}
		switches[i] = sw
		hostAdapters[i] = hostAdapter
	}

	links := make([]*Link, 0, len(edges))
	idAlloc := NewLinkIDAllocator()

	for _, edge := range edges {
		idA, err := idAlloc.Allocate()
		if err != nil {
			return nil, fmt.Errorf("allocate link endpoint id: %w", err)
		}
		idB, err := idAlloc.Allocate()
		if err != nil {
			return nil, fmt.Errorf("allocate link endpoint id: %w", err)
		}

		epA := NewEndpoint(idA, DefaultEndpointConfig())
		epB := NewEndpoint(idB, DefaultEndpointConfig())

		link := NewLink()
		if err := link.Connect(epA, epB); err != nil {
			return nil, fmt.Errorf("connect link: %w", err)
		}
		links = append(links, link)

		adapterA := NewLoopbackAdapter()
		adapterA.BindPort(edge.PortA, epA, switchLinkMAC(edge.SwitchA, edge.PortA))
		if _, err := switches[edge.SwitchA].AddPort(edge.PortA, PortKindSwitchLink,
			fmt.Sprintf("link%d", edge.PortA), adapterA, false); err != nil {
			return nil, err
		}

		adapterB := NewLoopbackAdapter()
		adapterB.BindPort(edge.PortB, epB, switchLinkMAC(edge.SwitchB, edge.PortB))
		if _, err := switches[edge.SwitchB].AddPort(edge.PortB, PortKindSwitchLink,
			fmt.Sprintf("link%d", edge.PortB), adapterB, false); err != nil {
			return nil, err
		}
	}

	return &Topology{Kind: kind, Switches: switches, links: links}, nil
}

// hostMAC and switchLinkMAC synthesize locally-administered MAC addresses
// so each port in a test topology has a stable, distinct address.
func hostMAC(switchIdx int) MAC {
	return MAC{0x02, 0x00, 0x00, 0x00, 0x00, byte(switchIdx + 1)} //nolint:gosec // test/demo address space
}

func switchLinkMAC(switchIdx, port int) MAC {
	return MAC{0x02, 0x01, 0x00, 0x00, byte(switchIdx + 1), byte(port)} //nolint:gosec // test/demo address space
}
