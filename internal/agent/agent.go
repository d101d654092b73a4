package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/guardrails"
	"github.com/aegisgate/aegis/internal/monitoring"
	"github.com/aegisgate/aegis/internal/security"
	"github.com/aegisgate/aegis/internal/tools"
)

// ToolCall records one attempted tool dispatch, allowed or not.
type ToolCall struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args,omitempty"`
	Allowed bool           `json:"allowed"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
}

// Response is the agent's answer before output evaluation.
type Response struct {
	Content   string         `json:"content"`
	ToolCalls []ToolCall     `json:"tool_calls"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ToolGate authorizes a single tool dispatch. The guardrails engine satisfies
// this; the agent consults it before every Execute.
type ToolGate interface {
	EvaluateToolCall(ctx context.Context, toolName string, args map[string]any, user *security.User) *guardrails.Result
}

// Agent produces a response for one user message.
type Agent interface {
	Respond(ctx context.Context, message string, user *security.User) (*Response, error)
}

// ScriptedAgent routes messages to tools by keyword and renders their results
// into a textual reply. It stands in for an LLM-backed agent: the safety
// pipeline around it is identical either way.
type ScriptedAgent struct {
	registry *tools.Registry
	gate     ToolGate
	logger   *zap.Logger
}

func NewScriptedAgent(registry *tools.Registry, gate ToolGate, logger *zap.Logger) *ScriptedAgent {
	return &ScriptedAgent{
		registry: registry,
		gate:     gate,
		logger:   logger.Named("agent"),
	}
}

var employeeIDPattern = regexp.MustCompile(`\bE-\d{4}\b`)

func (a *ScriptedAgent) Respond(ctx context.Context, message string, user *security.User) (*Response, error) {
	toolName, args := a.route(message)
	if toolName == "" {
		return &Response{
			Content:   "I can help with knowledge base lookups, support tickets, employee profiles and workplace data. What do you need?",
			ToolCalls: []ToolCall{},
			Metadata:  map[string]any{"routed": false},
		}, nil
	}

	call := ToolCall{Tool: toolName, Args: args}

	gateResult := a.gate.EvaluateToolCall(ctx, toolName, args, user)
	if !gateResult.Allowed {
		monitoring.RecordToolCall(toolName, "denied")
		call.Allowed = false
		a.logger.Warn("Tool dispatch denied",
			zap.String("tool", toolName),
			zap.String("user_id", user.ID))

		return &Response{
			Content:   fmt.Sprintf("I'm not able to use the %s tool for this request.", toolName),
			ToolCalls: []ToolCall{call},
			Metadata:  map[string]any{"routed": true, "denied": true},
		}, nil
	}

	call.Allowed = true
	result := a.registry.Execute(ctx, toolName, args, user)
	call.Success = result.Success
	if !result.Success {
		call.Error = result.Error
	}

	return &Response{
		Content:   renderReply(toolName, result),
		ToolCalls: []ToolCall{call},
		Metadata:  map[string]any{"routed": true},
	}, nil
}

// route picks at most one tool for the message. First match wins; order goes
// from the most specific intent to the most generic.
func (a *ScriptedAgent) route(message string) (string, map[string]any) {
	lower := strings.ToLower(message)

	if id := employeeIDPattern.FindString(message); id != "" {
		return "get_user_profile", map[string]any{"employee_id": id}
	}

	if containsAny(lower, "open ticket", "create a ticket", "file a ticket", "raise a ticket") {
		return "create_ticket", map[string]any{
			"title":       snippetLine(message, 80),
			"description": message,
		}
	}

	if containsAny(lower, "how many", "list employees", "list tickets", "open tickets", "by department") {
		table := "employees"
		if strings.Contains(lower, "ticket") {
			table = "tickets"
		}
		return "query_database", map[string]any{"table": table, "filters": map[string]any{}}
	}

	if containsAny(lower, "policy", "procedure", "how do i", "handbook", "benefit", "vacation", "expense", "vpn") {
		return "search_internal_kb", map[string]any{"query": message}
	}

	if containsAny(lower, "search the web", "look up online", "latest news") {
		return "web_search", map[string]any{"query": message}
	}

	return "", nil
}

func renderReply(toolName string, result *tools.Result) string {
	if !result.Success {
		return fmt.Sprintf("I couldn't complete that: %s", result.Error)
	}

	switch toolName {
	case "create_ticket":
		data, _ := result.Data.(map[string]any)
		return fmt.Sprintf("I've created ticket %v with %v priority. You'll get updates by email.", data["ticket_id"], data["priority"])
	case "search_internal_kb":
		return fmt.Sprintf("Here's what I found in the knowledge base: %s", summarize(result))
	case "get_user_profile":
		return fmt.Sprintf("Here's the profile you asked for: %s", summarize(result))
	case "query_database":
		return fmt.Sprintf("Here are the records I found: %s", summarize(result))
	default:
		return summarize(result)
	}
}

func summarize(result *tools.Result) string {
	return fmt.Sprintf("%v", result.Data)
}

func snippetLine(s string, max int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
