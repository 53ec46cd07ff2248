package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/partforge/partforge/pkg/apperr"
)

// Run event types.
const (
	EventRunStarted   = "run_started"
	EventRoundStarted = "round_started"
	EventToolStarted  = "tool_started"
	EventToolFinished = "tool_finished"
	EventRunFinished  = "run_finished"
)

// Event describes one step of an agent run.
type Event struct {
	Type       string        `json:"type"`
	RunID      string        `json:"runId"`
	Round      int           `json:"round,omitempty"`
	Tool       string        `json:"tool,omitempty"`
	ToolCallID string        `json:"toolCallId,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// EventSink receives run events. Publish must not block; slow consumers
// drop events rather than stall the run.
type EventSink interface {
	Publish(event Event)
}

// EventSinks fans events out to multiple sinks.
type EventSinks []EventSink

// Publish delivers the event to every sink in order.
func (s EventSinks) Publish(event Event) {
	for _, sink := range s {
		sink.Publish(event)
	}
}

// RunInput carries the request for a single agent run. SystemContext is
// appended to the system prompt when prior work is worth surfacing.
type RunInput struct {
	Prompt        string
	SystemContext string
}

// RunResult is the outcome of an agent run. ToolCalls lists every
// invocation the model requested, in execution order, including ones
// whose execution failed.
type RunResult struct {
	RunID     string     `json:"runId"`
	Response  string     `json:"response"`
	ToolCalls []ToolCall `json:"toolCalls"`
	Rounds    int        `json:"rounds"`
	Usage     TokenUsage `json:"usage"`
	Aborted   bool       `json:"aborted"`
}

// Runner drives the model/tool conversation until the model produces a
// final answer or the round budget runs out.
type Runner struct {
	provider LLMProvider
	registry *Registry
	config   Config
	sink     EventSink
	logger   zerolog.Logger
}

// NewRunner creates a runner. The sink may be nil when nobody listens.
func NewRunner(provider LLMProvider, registry *Registry, config Config, sink EventSink, logger zerolog.Logger) (*Runner, error) {
	if provider == nil {
		return nil, apperr.New(apperr.KindConfiguration, "llm provider is required")
	}
	if registry == nil {
		return nil, apperr.New(apperr.KindConfiguration, "tool registry is required")
	}
	config.applyDefaults()
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, apperr.New(apperr.KindConfiguration, "temperature must be between 0 and 1")
	}

	return &Runner{
		provider: provider,
		registry: registry,
		config:   config,
		sink:     sink,
		logger:   logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Run executes the tool loop for one request against the given session.
// Cancellation is honored at round boundaries and between tool calls;
// an aborted run returns a partial result with Aborted set and no error.
func (r *Runner) Run(ctx context.Context, input RunInput, session *Session) (*RunResult, error) {
	if session == nil {
		return nil, apperr.New(apperr.KindValidation, "session is required")
	}
	if input.Prompt == "" {
		return nil, apperr.New(apperr.KindValidation, "prompt cannot be empty")
	}

	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	logger := r.logger.With().Str("run_id", runID).Logger()
	start := time.Now()
	r.emit(Event{Type: EventRunStarted, RunID: runID})

	systemPrompt := r.config.SystemPrompt
	if input.SystemContext != "" {
		systemPrompt = fmt.Sprintf("%s\n\n# Context from earlier parts\n\n%s", systemPrompt, input.SystemContext)
	}

	messages := []Message{{Role: RoleUser, Content: input.Prompt}}
	tools := r.registry.ModelCatalog()

	allToolCalls := []ToolCall{}
	usage := TokenUsage{}

	for round := 0; round < r.config.MaxRounds; round++ {
		// Check for abort
		select {
		case <-ctx.Done():
			logger.Info().Int("round", round).Msg("Run aborted")
			r.emit(Event{Type: EventRunFinished, RunID: runID, Round: round, Error: ctx.Err().Error(), Duration: time.Since(start)})
			return &RunResult{RunID: runID, ToolCalls: allToolCalls, Rounds: round, Usage: usage, Aborted: true}, nil
		default:
		}

		r.emit(Event{Type: EventRoundStarted, RunID: runID, Round: round})

		response, err := r.callModelWithRetry(ctx, LLMRequest{
			Model:        r.config.Model,
			Messages:     messages,
			Tools:        tools,
			Temperature:  r.config.Temperature,
			MaxTokens:    r.config.MaxTokens,
			SystemPrompt: systemPrompt,
		})
		if err != nil {
			r.emit(Event{Type: EventRunFinished, RunID: runID, Round: round, Error: err.Error(), Duration: time.Since(start)})
			return nil, err
		}
		if response.Usage != nil {
			usage.InputTokens += response.Usage.InputTokens
			usage.OutputTokens += response.Usage.OutputTokens
		}

		// No tool calls - we're done
		if len(response.ToolCalls) == 0 {
			if response.Content == "" {
				err := apperr.New(apperr.KindModelProtocol, "model returned neither an answer nor tool calls")
				r.emit(Event{Type: EventRunFinished, RunID: runID, Round: round, Error: err.Error(), Duration: time.Since(start)})
				return nil, err
			}
			logger.Info().
				Int("rounds", round+1).
				Int("tool_calls", len(allToolCalls)).
				Msg("Run completed")
			r.emit(Event{Type: EventRunFinished, RunID: runID, Round: round, Duration: time.Since(start)})
			return &RunResult{
				RunID:     runID,
				Response:  response.Content,
				ToolCalls: allToolCalls,
				Rounds:    round + 1,
				Usage:     usage,
			}, nil
		}

		messages = append(messages, Message{
			Role:      RoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		// Execute tool calls sequentially, in the order the model asked.
		// A failing tool is reported back to the model, never fatal.
		for _, toolCall := range response.ToolCalls {
			if ctx.Err() != nil {
				logger.Info().Int("round", round).Str("tool", toolCall.Name).Msg("Run aborted between tool calls")
				r.emit(Event{Type: EventRunFinished, RunID: runID, Round: round, Error: ctx.Err().Error(), Duration: time.Since(start)})
				return &RunResult{RunID: runID, ToolCalls: allToolCalls, Rounds: round + 1, Usage: usage, Aborted: true}, nil
			}

			toolStart := time.Now()
			r.emit(Event{Type: EventToolStarted, RunID: runID, Round: round, Tool: toolCall.Name, ToolCallID: toolCall.ID})

			output, execErr := r.registry.Execute(ctx, toolCall.Name, toolCall.Parameters, session)
			content := output
			errText := ""
			if execErr != nil {
				content = execErr.Error()
				errText = execErr.Error()
				logger.Warn().
					Str("tool", toolCall.Name).
					Err(execErr).
					Msg("Tool execution failed")
			}

			r.emit(Event{Type: EventToolFinished, RunID: runID, Round: round, Tool: toolCall.Name, ToolCallID: toolCall.ID, Error: errText, Duration: time.Since(toolStart)})

			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    content,
				ToolCallID: toolCall.ID,
			})
			allToolCalls = append(allToolCalls, toolCall)
		}
	}

	err = apperr.New(apperr.KindModelProtocol, "maximum tool rounds (%d) exceeded without a final answer", r.config.MaxRounds)
	r.emit(Event{Type: EventRunFinished, RunID: runID, Round: r.config.MaxRounds, Error: err.Error(), Duration: time.Since(start)})
	return &RunResult{RunID: runID, ToolCalls: allToolCalls, Rounds: r.config.MaxRounds, Usage: usage}, err
}

// callModelWithRetry calls the model with exponential backoff retry.
func (r *Runner) callModelWithRetry(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.config.ModelTimeout)
		response, err := r.provider.Call(callCtx, request)
		cancel()
		if err == nil {
			return response, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A per-call deadline firing means a hung call, not a dead run.
		if !IsRetryableModelError(err) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		// Last attempt - don't wait
		if attempt == r.config.MaxRetries-1 {
			break
		}

		// Exponential backoff: 1s, 2s, 4s
		delayMs := 1000 * (1 << attempt)
		r.logger.Info().
			Int("attempt", attempt+1).
			Int("delayMs", delayMs).
			Msg("Retrying model call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}
	}

	return nil, apperr.Wrap(apperr.KindTransport, lastErr, "model call failed after %d attempts", r.config.MaxRetries)
}

func (r *Runner) emit(event Event) {
	if r.sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	r.sink.Publish(event)
}
