package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/partforge/partforge/pkg/apperr"
)

// ToolHandler executes one tool against the active session. Returned
// values are JSON-encoded into the tool-result entry.
type ToolHandler func(ctx context.Context, params map[string]interface{}, session *Session) (interface{}, error)

// ToolParameter describes one schema field.
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Minimum     *float64    `json:"minimum,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []ToolParameter
	Handler     ToolHandler
}

// ToolSummary is the catalog metadata exposed to presentation layers.
type ToolSummary struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

const maxToolOutputBytes = 10 * 1024

// Registry is the fixed catalog mapping tool names to validated
// executors. Register the tools at startup, then Seal it; the catalog is
// immutable afterwards. Lookups are by name and fail closed.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*ToolDefinition
	schemas     map[string]*gojsonschema.Schema
	order       []string
	sealed      bool
	toolTimeout time.Duration
	logger      zerolog.Logger
}

// NewRegistry creates an empty registry. toolTimeout bounds each
// executor invocation (default 60s).
func NewRegistry(toolTimeout time.Duration, logger zerolog.Logger) *Registry {
	if toolTimeout <= 0 {
		toolTimeout = 60 * time.Second
	}
	return &Registry{
		tools:       make(map[string]*ToolDefinition),
		schemas:     make(map[string]*gojsonschema.Schema),
		toolTimeout: toolTimeout,
		logger:      logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a tool and compiles its parameter schema. Registration
// fails on a sealed registry, duplicate names, or an invalid definition.
func (r *Registry) Register(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("registry is sealed, cannot register %s", def.Name)
	}
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool %s is already registered", def.Name)
	}
	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	r.order = append(r.order, def.Name)

	r.logger.Debug().Str("tool", def.Name).Msg("tool registered")
	return nil
}

// Seal freezes the catalog. Call it once after startup registration.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	r.logger.Info().Int("tools", len(r.tools)).Msg("tool registry sealed")
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Summaries lists the catalog metadata in registration order.
func (r *Registry) Summaries() []ToolSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summaries := make([]ToolSummary, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]
		summaries = append(summaries, ToolSummary{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Parameters,
		})
	}
	return summaries
}

// ModelCatalog renders the catalog in the shape providers expect: one
// map per tool with name, description and input_schema keys.
func (r *Registry) ModelCatalog() []interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	catalog := make([]interface{}, 0, len(r.order))
	for _, name := range r.order {
		def := r.tools[name]
		catalog = append(catalog, map[string]interface{}{
			"name":         def.Name,
			"description":  def.Description,
			"input_schema": schemaMap(*def),
		})
	}
	return catalog
}

// Execute validates params against the tool's schema and runs its
// handler under the registry's timeout. Unknown names and schema
// violations return validation errors before the handler is reached.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}, session *Session) (string, error) {
	r.mu.RLock()
	def := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if def == nil {
		return "", apperr.New(apperr.KindValidation, "unknown tool: %s", name)
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParams(schema, params); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "invalid parameters for %s", name)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.toolTimeout)
	defer cancel()

	start := time.Now()
	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)
	go func() {
		result, err := def.Handler(timeoutCtx, params, session)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		output, err := stringifyOutput(result)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s output: %w", name, err)
		}
		r.logger.Debug().
			Str("tool", name).
			Dur("duration", time.Since(start)).
			Msg("tool executed")
		return output, nil
	case err := <-errChan:
		// A handler that surfaces our own cancellation reports the same
		// way as one that never returned.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return "", apperr.Wrap(apperr.KindTransport, ctx.Err(), "tool %s aborted", name)
			}
			if timeoutCtx.Err() != nil {
				return "", apperr.New(apperr.KindTransport, "tool %s timed out after %s", name, r.toolTimeout)
			}
		}
		return "", err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return "", apperr.Wrap(apperr.KindTransport, ctx.Err(), "tool %s aborted", name)
		}
		return "", apperr.New(apperr.KindTransport, "tool %s timed out after %s", name, r.toolTimeout)
	}
}

func validateParams(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, fieldErr := range result.Errors() {
			details = append(details, fieldErr.String())
		}
		return fmt.Errorf("%s", strings.Join(details, "; "))
	}
	return nil
}

func compileSchema(def ToolDefinition) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap(def)))
}

func schemaMap(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}
	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if param.Minimum != nil {
			paramSchema["exclusiveMinimum"] = *param.Minimum
		}
		if len(param.Enum) > 0 {
			values := make([]interface{}, 0, len(param.Enum))
			for _, v := range param.Enum {
				values = append(values, v)
			}
			paramSchema["enum"] = values
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringifyOutput(result interface{}) (string, error) {
	var output string
	switch v := result.(type) {
	case nil:
		output = ""
	case string:
		output = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		output = string(encoded)
	}
	if len(output) > maxToolOutputBytes {
		output = output[:maxToolOutputBytes] + "... (truncated)"
	}
	return output, nil
}
