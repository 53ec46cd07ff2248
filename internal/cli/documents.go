package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/partforge/partforge/pkg/onshape"
)

var documentsLimit int

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "List recent CAD documents",
	Long:  `List the most recently created documents owned by the configured account.`,
	RunE:  runDocuments,
}

func init() {
	documentsCmd.Flags().IntVar(&documentsLimit, "limit", 10, "maximum number of documents to list")
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, args []string) error {
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
		Timeout: time.Duration(cfg.Onshape.Timeout) * time.Second,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	documents, err := cad.ListDocuments(ctx, documentsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(documents) == 0 {
		fmt.Fprintln(out, "No documents found.")
		return nil
	}

	for _, doc := range documents {
		fmt.Fprintf(out, "%-26s %-20s %s\n", doc.ID, doc.CreatedAt.Format("2006-01-02 15:04"), doc.Name)
	}
	return nil
}
