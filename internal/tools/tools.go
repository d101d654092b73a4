package tools

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/monitoring"
	"github.com/aegisgate/aegis/internal/security"
)

// Result is the uniform outcome of one tool execution.
type Result struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Tool is one executable capability. Tools perform no access control
// themselves beyond data-level checks; the guardrails engine gates every
// dispatch before Execute is reached.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error)
}

// Registry holds the tool set. It is populated once at startup and read-only
// afterwards.
type Registry struct {
	logger *zap.Logger
	tools  map[string]Tool
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("tool_registry"),
		tools:  make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) error {
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute dispatches one tool call. Unknown tools and tool errors come back
// as unsuccessful results rather than propagating.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, user *security.User) *Result {
	tool, ok := r.tools[name]
	if !ok {
		monitoring.RecordToolCall(name, "error")
		return &Result{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	result, err := tool.Execute(ctx, args, user)
	if err != nil {
		r.logger.Error("Tool execution failed",
			zap.String("tool", name),
			zap.String("user_id", user.ID),
			zap.Error(err))
		monitoring.RecordToolCall(name, "error")
		return &Result{Success: false, Error: err.Error()}
	}

	monitoring.RecordToolCall(name, "allowed")
	return result
}

// stringArg pulls a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

// intArg pulls an optional integer argument with a default. JSON decoding
// delivers numbers as float64.
func intArg(args map[string]any, key string, def int) int {
	raw, ok := args[key]
	if !ok {
		return def
	}
	switch v := raw.(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}
