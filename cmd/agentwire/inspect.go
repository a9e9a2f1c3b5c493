package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/agentwire/pkg/agentwire/record"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <transcript.ndjson>",
		Short: "Summarize a transcript: frame counts, turns, callback latencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := record.ReadTranscript(f)
			if err != nil {
				return err
			}
			printSummary(record.Summarize(entries))
			return nil
		},
	}
}

func printSummary(s record.Summary) {
	headerColor.Println("transcript")
	fmt.Printf("  entries:        %d (%d in, %d out)\n", s.Entries, s.InLines, s.OutLines)
	if !s.Start.IsZero() {
		fmt.Printf("  span:           %s .. %s (%s)\n",
			s.Start.Format("15:04:05.000"), s.End.Format("15:04:05.000"), s.End.Sub(s.Start))
	}
	fmt.Printf("  turns:          %d\n", s.Turns)
	fmt.Printf("  tool uses:      %d\n", s.ToolUses)
	if s.DecodeErrors > 0 {
		errColor.Printf("  decode errors:  %d\n", s.DecodeErrors)
	}

	if len(s.Frames) > 0 {
		headerColor.Println("frames")
		for _, ft := range sortedKeys(s.Frames) {
			fmt.Printf("  %-24s %d\n", ft, s.Frames[ft])
		}
	}

	if len(s.Callbacks) > 0 {
		headerColor.Println("callback latency")
		for _, subtype := range sortedKeys(s.Callbacks) {
			st := s.Callbacks[subtype]
			fmt.Printf("  %-24s n=%d avg=%s max=%s\n", subtype, st.Count, st.Avg(), st.Max)
		}
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
