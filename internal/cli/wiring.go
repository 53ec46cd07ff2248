package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/partforge/partforge/internal/config"
	"github.com/partforge/partforge/internal/logger"
	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/cadtools"
	"github.com/partforge/partforge/pkg/history"
	"github.com/partforge/partforge/pkg/memory"
	"github.com/partforge/partforge/pkg/onshape"
)

// app bundles the wired agent stack for commands that run the agent or
// talk to the CAD platform.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	cad      *onshape.Client
	registry *agent.Registry
	service  *agent.Service
	history  *history.Store
	memory   *memory.Store
}

// loadConfig loads the configuration and applies the --log-level flag
// when the user set it explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. The logger itself passes every
// level; the zerolog global level is the gate, so the config watcher can
// adjust verbosity at runtime.
func newLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:     "trace",
		File:      cfg.Logging.File,
		Console:   console && cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	level, lerr := zerolog.ParseLevel(cfg.Logging.Level)
	if lerr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	return log, nil
}

// buildApp wires configuration, logging, the platform client, the tool
// catalog and the agent service. Extra sinks receive run events.
func buildApp(cmd *cobra.Command, console bool, sinks ...agent.EventSink) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, console)
	if err != nil {
		return nil, err
	}

	return assemble(cfg, log, sinks...)
}

// assemble wires the agent stack from a loaded configuration. It takes
// ownership of the logger and closes it on failure.
func assemble(cfg *config.Config, log *logger.Logger, sinks ...agent.EventSink) (*app, error) {
	zl := log.GetZerolog()

	cad, err := onshape.NewClient(onshape.Config{
		BaseURL: cfg.Onshape.BaseURL,
		Credentials: onshape.Credentials{
			AccessKey: cfg.Onshape.AccessKey,
			SecretKey: cfg.Onshape.SecretKey,
		},
		Timeout: time.Duration(cfg.Onshape.Timeout) * time.Second,
		Logger:  zl,
	})
	if err != nil {
		log.Close()
		return nil, err
	}

	registry := agent.NewRegistry(time.Duration(cfg.Agent.ToolTimeout)*time.Second, zl)
	if err := cadtools.RegisterCADTools(registry, cad); err != nil {
		log.Close()
		return nil, err
	}

	provider, err := agent.NewProvider(cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.BaseURL)
	if err != nil {
		log.Close()
		return nil, err
	}

	var sink agent.EventSink
	if len(sinks) > 0 {
		sink = agent.EventSinks(sinks)
	}

	systemPrompt := cfg.Agent.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = cadtools.DefaultSystemPrompt
	}

	runner, err := agent.NewRunner(provider, registry, agent.Config{
		Model:        cfg.LLM.Model,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
		SystemPrompt: systemPrompt,
		MaxRounds:    cfg.Agent.MaxRounds,
		MaxRetries:   cfg.Agent.MaxRetries,
		ModelTimeout: time.Duration(cfg.Agent.ModelTimeout) * time.Second,
	}, sink, zl)
	if err != nil {
		log.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, cad: cad, registry: registry}

	if cfg.History.Enabled {
		a.history, err = history.Open(history.Config{
			Path:          cfg.History.Path,
			Retention:     time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
			SweepSchedule: cfg.History.SweepSchedule,
			Logger:        zl,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	if cfg.Memory.Enabled {
		embedder := memory.NewOpenAIEmbedder(cfg.EmbeddingAPIKey(), cfg.Memory.EmbeddingModel, "")
		a.memory, err = memory.Open(memory.Config{
			Path:     cfg.Memory.Path,
			Provider: embedder,
			Logger:   zl,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open part memory: %w", err)
		}
	}

	// Typed nils must not reach the service as non-nil interfaces.
	var recorder agent.RunRecorder
	if a.history != nil {
		recorder = a.history
	}
	var recall agent.Recall
	if a.memory != nil {
		recall = a.memory
	}

	a.service, err = agent.NewService(runner, registry, recorder, recall, zl)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases the stores and the log file.
func (a *app) Close() {
	if a.memory != nil {
		a.memory.Close()
	}
	if a.history != nil {
		a.history.Close()
	}
	if a.log != nil {
		a.log.Close()
	}
}

// apiBaseURL is where a running partforge serve listens.
func apiBaseURL(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}
