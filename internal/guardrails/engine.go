package guardrails

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/monitoring"
	"github.com/aegisgate/aegis/internal/security"
)

// Config selects and tunes the evaluation backend. RulesURL empty means the
// in-process baseline backend; set, the rules service is probed once at
// construction and used only if the probe succeeds.
type Config struct {
	// EvaluationTimeout bounds a single evaluation. Zero selects the default.
	EvaluationTimeout time.Duration

	// RulesURL is the base URL of the remote rules service.
	RulesURL string

	// RulesTimeout is the HTTP client timeout for the rules service.
	RulesTimeout time.Duration
}

const defaultEvaluationTimeout = 15 * time.Second

// Engine owns the selected backend and wraps every evaluation with timeout
// enforcement, fail-closed error conversion, audit emission and metrics. It
// is constructed once at startup and shared across requests; its methods
// never return an error.
type Engine struct {
	backend Backend
	audit   AuditSink
	logger  *zap.Logger
	timeout time.Duration
}

func NewEngine(cfg Config, baseline *BaselineBackend, audit AuditSink, logger *zap.Logger) *Engine {
	timeout := cfg.EvaluationTimeout
	if timeout <= 0 {
		timeout = defaultEvaluationTimeout
	}
	if audit == nil {
		audit = NopAuditSink{}
	}

	log := logger.Named("guardrails")

	var backend Backend = baseline
	if cfg.RulesURL != "" {
		rules := NewRulesBackend(RulesConfig{URL: cfg.RulesURL, Timeout: cfg.RulesTimeout}, logger)

		probeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rules.HealthCheck(probeCtx)
		cancel()

		if err != nil {
			log.Warn("Rules service unavailable, using baseline backend",
				zap.String("url", cfg.RulesURL),
				zap.Error(err))
		} else {
			backend = rules
		}
	}

	log.Info("Guardrails engine initialized",
		zap.String("backend", backend.Name()),
		zap.Duration("timeout", timeout))

	return &Engine{
		backend: backend,
		audit:   audit,
		logger:  log,
		timeout: timeout,
	}
}

// BackendName reports which backend was selected at construction.
func (e *Engine) BackendName() string {
	return e.backend.Name()
}

func (e *Engine) EvaluateInput(ctx context.Context, message string, user *security.User, reqCtx map[string]any) *Result {
	return e.run(ctx, "input", user, func(ctx context.Context) (*Result, error) {
		return e.backend.EvaluateInput(ctx, message, user, reqCtx)
	})
}

func (e *Engine) EvaluateOutput(ctx context.Context, response string, user *security.User, reqCtx map[string]any) *Result {
	return e.run(ctx, "output", user, func(ctx context.Context) (*Result, error) {
		return e.backend.EvaluateOutput(ctx, response, user, reqCtx)
	})
}

func (e *Engine) EvaluateToolCall(ctx context.Context, toolName string, args map[string]any, user *security.User) *Result {
	return e.run(ctx, "tool_call", user, func(ctx context.Context) (*Result, error) {
		return e.backend.EvaluateToolCall(ctx, toolName, args, user)
	})
}

func (e *Engine) run(ctx context.Context, stage string, user *security.User, eval func(context.Context) (*Result, error)) *Result {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	result, err := eval(ctx)
	duration := time.Since(start)

	if err != nil {
		e.logger.Error("Guardrails evaluation failed",
			zap.String("stage", stage),
			zap.String("backend", e.backend.Name()),
			zap.String("user_id", user.ID),
			zap.Error(err))
		monitoring.RecordEvaluationError(stage, e.backend.Name())
		result = e.failClosed(stage, user, err)
	}

	decision := "allow"
	if !result.Allowed {
		decision = "block"
	}
	monitoring.RecordEvaluation(stage, decision, e.backend.Name(), duration.Seconds())

	e.emitAudit(stage, result)
	return result
}

// failClosed builds the synthetic blocked result for a backend failure. The
// request is never allowed through on error.
func (e *Engine) failClosed(stage string, user *security.User, err error) *Result {
	violationType := ViolationPromptInjection
	switch stage {
	case "output":
		violationType = ViolationInformationLeakage
	case "tool_call":
		violationType = ViolationToolInjection
	}

	result := newResult([]Violation{{
		Type:           violationType,
		Severity:       SeverityCritical,
		Message:        "Guardrails evaluation failed",
		Context:        map[string]any{"error": err.Error()},
		UserID:         user.ID,
		Blocked:        true,
		Recommendation: "Please try again or contact support.",
	}}, map[string]any{
		"engine": e.backend.Name(),
		"error":  err.Error(),
	})
	return result
}

// emitAudit sends one record per violation and one decision per evaluation.
// The sink contract makes these fire-and-forget, so failures there cannot
// affect the result already computed.
func (e *Engine) emitAudit(stage string, result *Result) {
	var userID string
	for _, v := range result.Violations {
		userID = v.UserID
		monitoring.RecordViolation(v.Type.String(), v.Severity.String())
		e.audit.RecordViolation(v)
	}

	decision := "allow"
	if !result.Allowed {
		decision = "block"
	}
	e.audit.RecordDecision(Decision{
		Stage:     stage,
		Decision:  decision,
		Reasoning: decisionReasoning(result),
		UserID:    userID,
		Safe:      result.Allowed,
	})
}

func decisionReasoning(result *Result) string {
	if len(result.Violations) == 0 {
		return "no violations detected"
	}
	types := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		types[i] = v.Type.String()
	}
	return fmt.Sprintf("violations: %s", strings.Join(types, ", "))
}
