package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/partforge/partforge/internal/config"
	"github.com/partforge/partforge/internal/metrics"
	"github.com/partforge/partforge/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the partforge HTTP server",
	Long: `Run the partforge HTTP server.
The server exposes part creation over a JSON API, streams run events
over a websocket, and serves health and Prometheus metrics endpoints.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	zl := log.GetZerolog()

	// The stream and the metrics sink see every run event; the stream is
	// shared with the server so websocket subscribers get the same feed.
	m := metrics.NewMetrics()
	stream := server.NewStream(zl)

	app, err := assemble(cfg, log, stream, m.Sink())
	if err != nil {
		return err
	}
	defer app.Close()

	srv, err := server.New(server.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Service: app.service,
		History: app.history,
		CAD:     app.cad,
		Metrics: m.Handler(),
		Logger:  zl,
		Stream:  stream,
	})
	if err != nil {
		return err
	}

	// Log level follows config file edits without a restart.
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile).GetConfigPath(), zl, func() {
		reloaded, err := config.Load(cfgFile)
		if err != nil {
			zl.Warn().Err(err).Msg("Config reload failed")
			return
		}
		if level, perr := zerolog.ParseLevel(reloaded.Logging.Level); perr == nil {
			zerolog.SetGlobalLevel(level)
			zl.Info().Str("level", reloaded.Logging.Level).Msg("Log level updated")
		}
	})
	if err != nil {
		zl.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zl.Info().Str("signal", sig.String()).Msg("Received signal")
		if err := srv.Stop(); err != nil {
			zl.Error().Err(err).Msg("Shutdown error")
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
