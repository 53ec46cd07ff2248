package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/agent"
)

var createVerbose bool

var createCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Create a part from a natural language description",
	Long: `Create a part from a natural language description.
The agent creates a document and part studio as needed, then adds the
features the description asks for. Interrupting with Ctrl-C stops the
run at the next round boundary.`,
	Example: `  partforge create "a box 10mm x 20mm x 15mm"
  partforge create "a steel cylinder, 30mm diameter, 80mm long"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().BoolVarP(&createVerbose, "verbose", "v", false, "print tool progress while the agent works")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")

	var sinks []agent.EventSink
	if createVerbose {
		sinks = append(sinks, printerSink{out: cmd.OutOrStdout()})
	}

	app, err := buildApp(cmd, false, sinks...)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := app.service.CreatePart(ctx, description)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Message)
	printSession(out, result.Session)

	if !result.Success {
		return fmt.Errorf("part creation did not complete")
	}
	return nil
}

func printSession(out io.Writer, state agent.Snapshot) {
	if state.DocumentID == "" {
		return
	}
	fmt.Fprintf(out, "\nDocument:    %s\n", state.DocumentID)
	fmt.Fprintf(out, "Workspace:   %s\n", state.WorkspaceID)
	if state.ElementID != "" {
		fmt.Fprintf(out, "Part studio: %s\n", state.ElementID)
	}
}

// printerSink mirrors run progress onto the terminal.
type printerSink struct {
	out io.Writer
}

func (p printerSink) Publish(event agent.Event) {
	switch event.Type {
	case agent.EventRoundStarted:
		fmt.Fprintf(p.out, "round %d\n", event.Round+1)
	case agent.EventToolStarted:
		fmt.Fprintf(p.out, "  -> %s\n", event.Tool)
	case agent.EventToolFinished:
		if event.Error != "" {
			fmt.Fprintf(p.out, "  !! %s: %s\n", event.Tool, event.Error)
		}
	}
}
