package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/agent"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and session status",
	Long:  `Show whether a partforge server is running and what CAD session it holds.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type serverStatus struct {
	SessionState agent.Snapshot `json:"sessionState"`
	Busy         bool           `json:"busy"`
}

type serverHealth struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	base := apiBaseURL(cfg)
	client := &http.Client{Timeout: 3 * time.Second}

	status, err := fetchStatus(client, base)
	if err != nil {
		fmt.Fprintf(out, "Status: not running (%s)\n", base)
		return nil
	}

	fmt.Fprintln(out, "Status: running")
	if health, err := fetchHealth(client, base); err == nil {
		uptime := time.Duration(health.Uptime * float64(time.Second))
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(uptime))
	}
	if status.Busy {
		fmt.Fprintln(out, "Run: in progress")
	}

	state := status.SessionState
	if state.DocumentID == "" {
		fmt.Fprintln(out, "Session: empty")
		return nil
	}
	fmt.Fprintf(out, "Document:    %s\n", state.DocumentID)
	fmt.Fprintf(out, "Workspace:   %s\n", state.WorkspaceID)
	if state.ElementID != "" {
		fmt.Fprintf(out, "Part studio: %s\n", state.ElementID)
	}
	return nil
}

func fetchStatus(client *http.Client, baseURL string) (*serverStatus, error) {
	resp, err := client.Get(baseURL + "/api/status")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status serverStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func fetchHealth(client *http.Client, baseURL string) (*serverHealth, error) {
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}

	var health serverHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return &health, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
