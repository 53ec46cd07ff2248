package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/partforge/partforge/pkg/apperr"
)

// Run outcomes as recorded in history.
const (
	OutcomeCompleted = "completed"
	OutcomePartial   = "partial"
	OutcomeAborted   = "aborted"
	OutcomeFailed    = "failed"
)

// ErrRunInProgress is returned when a part creation run is requested
// while another one holds the session.
var ErrRunInProgress = apperr.New(apperr.KindValidation, "a part creation run is already in progress")

// RunRecord is the durable trace of one part creation run.
type RunRecord struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Outcome     string        `json:"outcome"`
	Message     string        `json:"message,omitempty"`
	Model       string        `json:"model"`
	Rounds      int           `json:"rounds"`
	Duration    time.Duration `json:"duration"`
	Tools       []string      `json:"tools,omitempty"`
}

// RunRecorder persists run records.
type RunRecorder interface {
	RecordRun(ctx context.Context, record RunRecord) error
}

// Recall surfaces descriptions of previously built parts so the model
// can reuse dimensions and naming. Implementations that cannot answer
// should return an empty slice, not an error.
type Recall interface {
	Remember(ctx context.Context, description string) error
	Similar(ctx context.Context, description string, k int) ([]string, error)
}

// PartResult is what callers of CreatePart get back.
type PartResult struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Session Snapshot `json:"sessionState"`
	RunID   string   `json:"runId,omitempty"`
	Rounds  int      `json:"rounds,omitempty"`
}

// Service is the session-scoped surface for part creation. It owns one
// CAD session and serializes runs against it.
type Service struct {
	runner   *Runner
	registry *Registry
	session  *Session
	recorder RunRecorder
	recall   Recall
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewService creates a service with a fresh session. Recorder and
// recall are optional; a nil recorder skips history, a nil recall skips
// prior-part context.
func NewService(runner *Runner, registry *Registry, recorder RunRecorder, recall Recall, logger zerolog.Logger) (*Service, error) {
	if runner == nil {
		return nil, apperr.New(apperr.KindConfiguration, "runner is required")
	}
	if registry == nil {
		return nil, apperr.New(apperr.KindConfiguration, "tool registry is required")
	}

	return &Service{
		runner:   runner,
		registry: registry,
		session:  NewSession(),
		recorder: recorder,
		recall:   recall,
		logger:   logger.With().Str("component", "service").Logger(),
	}, nil
}

// CreatePart runs the agent against the session until the part is built
// or the run bounds are hit. A run that exhausts its round budget comes
// back with Success false and the partial session state intact.
func (s *Service) CreatePart(ctx context.Context, description string) (*PartResult, error) {
	if strings.TrimSpace(description) == "" {
		return nil, apperr.New(apperr.KindValidation, "part description cannot be empty")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	input := RunInput{Prompt: description}
	if s.recall != nil {
		similar, err := s.recall.Similar(ctx, description, 3)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to recall similar parts")
		} else if len(similar) > 0 {
			input.SystemContext = strings.Join(similar, "\n---\n")
		}
	}

	start := time.Now()
	result, runErr := s.runner.Run(ctx, input, s.session)
	duration := time.Since(start)

	outcome := OutcomeFailed
	message := ""
	success := false
	switch {
	case runErr == nil && result.Aborted:
		outcome = OutcomeAborted
		message = "part creation was canceled before completion"
	case runErr == nil:
		outcome = OutcomeCompleted
		success = true
		message = result.Response
	case result != nil:
		outcome = OutcomePartial
		message = runErr.Error()
	default:
		message = runErr.Error()
	}

	s.record(RunRecord{
		ID:          runID(result),
		Description: description,
		Outcome:     outcome,
		Message:     message,
		Model:       s.runner.config.Model,
		Rounds:      rounds(result),
		Duration:    duration,
		Tools:       toolNames(result),
	})

	if result == nil {
		return nil, runErr
	}

	if success && s.recall != nil {
		if err := s.recall.Remember(ctx, description); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to remember part description")
		}
	}

	return &PartResult{
		Success: success,
		Message: message,
		Session: s.session.Snapshot(),
		RunID:   result.RunID,
		Rounds:  result.Rounds,
	}, nil
}

// Status returns the current session state.
func (s *Service) Status() Snapshot {
	return s.session.Snapshot()
}

// Busy reports whether a run currently holds the session.
func (s *Service) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reset clears the session so the next run starts from nothing.
func (s *Service) Reset() {
	s.session.Reset()
	s.logger.Info().Msg("Session reset")
}

// Tools lists the registered tool catalog.
func (s *Service) Tools() []ToolSummary {
	return s.registry.Summaries()
}

// record persists the run trace on a detached context so aborted runs
// still leave one.
func (s *Service) record(record RunRecord) {
	if s.recorder == nil {
		return
	}
	recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.RecordRun(recCtx, record); err != nil {
		s.logger.Warn().Err(err).Str("outcome", record.Outcome).Msg("Failed to record run")
	}
}

func runID(result *RunResult) string {
	if result == nil {
		return ""
	}
	return result.RunID
}

func rounds(result *RunResult) int {
	if result == nil {
		return 0
	}
	return result.Rounds
}

func toolNames(result *RunResult) []string {
	if result == nil {
		return nil
	}
	names := make([]string, 0, len(result.ToolCalls))
	for _, call := range result.ToolCalls {
		names = append(names, call.Name)
	}
	return names
}
