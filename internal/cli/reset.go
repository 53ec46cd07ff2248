package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the CAD session of a running server",
	Long: `Reset the CAD session of a running server.
The next part is created in a fresh document instead of the current one.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	base := apiBaseURL(cfg)
	client := &http.Client{Timeout: 3 * time.Second}

	if err := postReset(client, base); err != nil {
		return fmt.Errorf("no running server at %s: %w", base, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Session reset.")
	return nil
}

func postReset(client *http.Client, baseURL string) error {
	resp, err := client.Post(baseURL+"/api/reset", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reset endpoint returned %d", resp.StatusCode)
	}
	return nil
}
