// govswitch host driver -- spawns virtual hosts attached to a standalone
// switch instance and, optionally, drives UDP traffic between them
// (spec.md §6 host-driver CLI).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/netfabric/govswitch/internal/fabric"
	"github.com/netfabric/govswitch/internal/vhost"
)

func main() {
	os.Exit(run())
}

func run() int {
	numHosts := flag.Int("n", 3, "number of virtual hosts")
	pktgenEnabled := flag.Bool("p", false, "enable packet generator on every host")
	pps := flag.Float64("r", 10, "packets per second per host, when -p is set")
	count := flag.Int("c", 0, "packets to send per host, 0 = infinite")
	durationSec := flag.Int("d", 0, "run duration in seconds, 0 = until signal")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if *numHosts < 2 {
		logger.Error("at least 2 hosts are required to exchange traffic")
		return 1
	}
	if *numHosts > fabric.MaxPorts {
		logger.Error("too many hosts for a single switch instance",
			slog.Int("requested", *numHosts), slog.Int("max", fabric.MaxPorts))
		return 1
	}

	sw := fabric.NewSwitch(fabric.DefaultSwitchConfig(1), logger)
	hosts := make([]*vhost.Host, *numHosts)

	for i := range *numHosts {
		hostMAC := fabric.MAC{0x02, 0x00, 0x00, 0x00, 0x00, byte(i + 1)} //nolint:gosec // demo address space
		hostIP := vhost.IPv4{10, 0, 0, byte(i + 1)}                     //nolint:gosec // demo address space

		switchSide := fabric.NewEndpoint(uint32(i*2+1), fabric.DefaultEndpointConfig())   //nolint:gosec // demo id space
		hostSide := fabric.NewEndpoint(uint32(i*2+2), fabric.DefaultEndpointConfig())     //nolint:gosec // demo id space
		link := fabric.NewLink()
		if err := link.Connect(switchSide, hostSide); err != nil {
			logger.Error("failed to connect host link", slog.String("error", err.Error()))
			return 1
		}

		adapter := fabric.NewLoopbackAdapter()
		adapter.BindPort(i, switchSide, hostMAC)
		if _, err := sw.AddPort(i, fabric.PortKindHost, fmt.Sprintf("host%d", i), adapter, false); err != nil {
			logger.Error("failed to add switch port", slog.String("error", err.Error()))
			return 1
		}

		host := vhost.NewHost(vhost.Config{Name: fmt.Sprintf("host%d", i), MAC: hostMAC, IP: hostIP}, hostSide, logger)
		if *pktgenEnabled {
			next := (i + 1) % *numHosts
			nextMAC := fabric.MAC{0x02, 0x00, 0x00, 0x00, 0x00, byte(next + 1)} //nolint:gosec // demo address space
			nextIP := vhost.IPv4{10, 0, 0, byte(next + 1)}                     //nolint:gosec // demo address space
			host.ConfigurePktgen(vhost.PktgenConfig{
				Enabled: true,
				PktSize: 128,
				PPS:     *pps,
				Count:   *count,
				DstMAC:  nextMAC,
				DstIP:   nextIP,
				DstPort: 9999,
				SrcPort: 9999,
			})
		}
		hosts[i] = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *durationSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(*durationSec)*time.Second)
		defer cancel()
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return sw.Run(gCtx) })
	for _, h := range hosts {
		h := h
		g.Go(func() error { return h.Run(gCtx) })
	}

	if err := g.Wait(); err != nil && gCtx.Err() == nil {
		logger.Error("vhostd exited with error", slog.String("error", err.Error()))
		return 1
	}

	for _, h := range hosts {
		stats := h.Stats.Snapshot()
		logger.Info("host final stats",
			slog.Uint64("tx_packets", stats.TxPackets),
			slog.Uint64("rx_packets", stats.RxPackets),
			slog.Uint64("rx_drops", stats.RxDrops))
	}

	return 0
}
