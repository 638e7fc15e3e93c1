package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

type portView struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Configured bool   `json:"configured"`
}

func newPortsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports <switch-id>",
		Short: "List a switch instance's ports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ports []portView
			if err := newAPIClient().getJSON("/switches/"+args[0]+"/ports", &ports); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "INDEX\tNAME\tKIND\tCONFIGURED")
			for _, p := range ports {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", p.Index, p.Name, p.Kind, p.Configured)
			}
			return tw.Flush()
		},
	}
	return cmd
}
