package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newShellCmd returns an interactive REPL over the same subcommands,
// grounded on _examples/dantte-lp-gobfd/cmd/gobfdctl/commands/shell.go's
// bufio.Scanner-based loop.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive vswitchctl shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd)
		},
	}
}

func runShell(parent *cobra.Command) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("vswitchctl interactive shell. Type 'help' for commands, 'exit' to quit.")

	for {
		fmt.Print("vswitchctl> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		fields := strings.Fields(line)
		root := Root()
		root.SetArgs(fields)
		if err := root.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	return scanner.Err()
}
