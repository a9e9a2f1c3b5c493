// Command agentwire is a debug CLI for the session engine: it replays
// and summarizes recorded transcripts and probes a live agent binary
// over the stdio transport.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "agentwire",
		Short:         "Inspect and replay agent control-protocol sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReplayCmd(), newInspectCmd(), newProbeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
