package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/cadtools"
	"github.com/partforge/partforge/pkg/onshape"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the CAD tools available to the agent",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	cad, err := onshape.NewClient(onshape.Config{
		BaseURL: cfg.Onshape.BaseURL,
		Credentials: onshape.Credentials{
			AccessKey: cfg.Onshape.AccessKey,
			SecretKey: cfg.Onshape.SecretKey,
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		return err
	}

	registry := agent.NewRegistry(time.Duration(cfg.Agent.ToolTimeout)*time.Second, zerolog.Nop())
	if err := cadtools.RegisterCADTools(registry, cad); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tools := registry.Summaries()
	fmt.Fprintf(out, "%d tools available:\n\n", len(tools))
	for _, tool := range tools {
		fmt.Fprintf(out, "  %-22s %s\n", tool.Name, tool.Description)
	}
	return nil
}
