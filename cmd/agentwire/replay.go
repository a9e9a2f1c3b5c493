package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/agentwire/pkg/agentwire"
	"github.com/conneroisu/agentwire/pkg/agentwire/events"
	"github.com/conneroisu/agentwire/pkg/agentwire/options"
	"github.com/conneroisu/agentwire/pkg/agentwire/record"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	textColor     = color.New(color.FgWhite)
	thinkingColor = color.New(color.FgHiBlack, color.Italic)
	toolColor     = color.New(color.FgYellow)
	errColor      = color.New(color.FgRed, color.Bold)
	metaColor     = color.New(color.FgHiBlack)
)

func newReplayCmd() *cobra.Command {
	var speed float64
	var prompt string

	cmd := &cobra.Command{
		Use:   "replay <transcript.ndjson>",
		Short: "Re-drive a recorded transcript and render its semantic events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := record.ReadTranscript(f)
			if err != nil {
				return err
			}

			replayer := record.NewReplayer(entries, record.ReplayerConfig{Speed: speed})
			session, err := agentwire.Connect(cmd.Context(), replayer, options.Options{})
			if err != nil {
				return fmt.Errorf("replay connect: %w", err)
			}
			defer session.Close()

			turn, err := session.SubmitPrompt(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			for ev := range turn.Events() {
				renderEvent(ev)
			}
			return turn.Err()
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 0, "replay pacing: 1 = recorded pace, 2 = twice as fast, 0 = no pacing")
	cmd.Flags().StringVar(&prompt, "prompt", "replay", "prompt text submitted as the replayed turn")
	return cmd
}

func renderEvent(ev events.Event) {
	switch e := ev.(type) {
	case events.MessageStart:
		headerColor.Printf("\n── message %s (%s)\n", e.MessageID, e.Model)
	case events.TextDelta:
		textColor.Print(e.Text)
	case events.ThinkingDelta:
		thinkingColor.Print(e.Thinking)
	case events.ToolUseStart:
		toolColor.Printf("\n[tool %s %s] ", e.ToolName, e.ToolID)
	case events.ToolInputDelta:
		toolColor.Print(e.PartialJSON)
	case events.MessageDelta:
		if e.StopReason != "" {
			metaColor.Printf("\n[stop_reason=%s]\n", e.StopReason)
		}
	case events.MessageStop:
		metaColor.Printf("\n── stop (%s)\n", e.StopReason)
		if len(e.StructuredOutput) > 0 {
			fmt.Println(string(e.StructuredOutput))
		}
	case events.ErrorEvent:
		errColor.Printf("\n[error %s] %s\n", e.Code, e.Message)
	case events.PlainMessage:
		metaColor.Printf("\n[%s] %s\n", e.Type, string(e.Raw))
	}
}
