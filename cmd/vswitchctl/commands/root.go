// Package commands implements the vswitchctl cobra command tree, grounded
// on _examples/dantte-lp-gobfd/cmd/gobfdctl/commands/root.go's persistent
// flag + client-construction shape.
package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	addr   string
	format string
}

var flags globalFlags

// Root builds the vswitchctl command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:           "vswitchctl",
		Short:         "Control and inspect a running govswitch daemon",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flags.addr, "addr", "http://127.0.0.1:8080", "govswitch control API address")
	root.PersistentFlags().StringVar(&flags.format, "format", "table", "output format; accepted but not used: every command prints a table")

	root.AddCommand(newSwitchesCmd())
	root.AddCommand(newPortsCmd())
	root.AddCommand(newMACTableCmd())
	root.AddCommand(newShellCmd())

	return root
}

// apiClient is a thin JSON-over-HTTP client for the control API
// (SPEC_FULL.md §6: plain net/http + JSON in place of the teacher's
// ConnectRPC client).
type apiClient struct {
	httpClient *http.Client
	baseAddr   string
}

func newAPIClient() *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseAddr:   flags.addr,
	}
}

func (c *apiClient) getJSON(path string, out any) error {
	resp, err := c.httpClient.Get(c.baseAddr + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("request %s: server returned %s: %s", path, resp.Status, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
