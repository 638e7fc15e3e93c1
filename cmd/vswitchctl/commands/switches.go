package commands

import (
	"fmt"
	"text/tabwriter"

	"os"

	"github.com/spf13/cobra"
)

type switchSnapshot struct {
	SwitchID   int    `json:"switch_id"`
	InstanceID string `json:"instance_id"`
	PortCount  int    `json:"port_count"`
	Counters   struct {
		RxPackets     uint64 `json:"rx_packets"`
		TxPackets     uint64 `json:"tx_packets"`
		Drops         uint64 `json:"drops"`
		TTLExpired    uint64 `json:"ttl_expired"`
		QoSClassified uint64 `json:"qos_classified"`
		Flooded       uint64 `json:"flooded"`
		Unicast       uint64 `json:"unicast"`
		ServiceCycles uint64 `json:"service_cycles"`
	} `json:"counters"`
}

func newSwitchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switches",
		Short: "List or inspect switch instances",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all registered switch instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			var switches []switchSnapshot
			if err := newAPIClient().getJSON("/switches", &switches); err != nil {
				return err
			}
			return printSwitches(switches)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <switch-id>",
		Short: "Show one switch instance's detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var detail switchSnapshot
			if err := newAPIClient().getJSON("/switches/"+args[0], &detail); err != nil {
				return err
			}
			return printSwitches([]switchSnapshot{detail})
		},
	})

	return cmd
}

func printSwitches(switches []switchSnapshot) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SWITCH\tPORTS\tRX\tTX\tDROPS\tTTL-EXP\tFLOODED\tUNICAST")
	for _, s := range switches {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.SwitchID, s.PortCount, s.Counters.RxPackets, s.Counters.TxPackets,
			s.Counters.Drops, s.Counters.TTLExpired, s.Counters.Flooded, s.Counters.Unicast)
	}
	return tw.Flush()
}
