// govswitch control client.
package main

import (
	"fmt"
	"os"

	"github.com/netfabric/govswitch/cmd/vswitchctl/commands"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
