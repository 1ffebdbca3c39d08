// Command discord-bot hosts WASM plugins against a Discord bot
// connection: it resolves configured plugins from their registries,
// loads them into a sandboxed wazero runtime, and wires them to
// Discord's gateway and REST API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "discord-bot",
		Short: "WASM plugin host for a Discord bot",
	}

	root.AddCommand(runCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
