package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type macEntryView struct {
	MAC      [6]byte   `json:"MAC"`
	Port     int       `json:"Port"`
	LastSeen time.Time `json:"LastSeen"`
	Valid    bool      `json:"Valid"`
	Static   bool      `json:"Static"`
	Comment  string    `json:"Comment"`
}

func newMACTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mac-table <switch-id>",
		Short: "Show a switch instance's MAC table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []macEntryView
			if err := newAPIClient().getJSON("/switches/"+args[0]+"/mac-table", &entries); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "MAC\tPORT\tSTATIC\tAGE\tCOMMENT")
			for _, e := range entries {
				age := time.Since(e.LastSeen).Round(time.Second)
				mac := fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
					e.MAC[0], e.MAC[1], e.MAC[2], e.MAC[3], e.MAC[4], e.MAC[5])
				fmt.Fprintf(tw, "%s\t%d\t%t\t%s\t%s\n", mac, e.Port, e.Static, age, e.Comment)
			}
			return tw.Flush()
		},
	}
	return cmd
}
