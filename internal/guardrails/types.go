package guardrails

import (
	"context"

	"github.com/aegisgate/aegis/internal/security"
)

// ViolationType names one heuristic finding category.
type ViolationType string

const (
	ViolationPromptInjection    ViolationType = "prompt_injection"
	ViolationJailbreakAttempt   ViolationType = "jailbreak_attempt"
	ViolationPIIDetected        ViolationType = "pii_detected"
	ViolationUnauthorizedTool   ViolationType = "unauthorized_tool"
	ViolationRestrictedTopic    ViolationType = "restricted_topic"
	ViolationOutputPII          ViolationType = "output_pii"
	ViolationInformationLeakage ViolationType = "information_leakage"
	ViolationToolInjection      ViolationType = "tool_injection"

	// ViolationRateLimitExceeded is part of the taxonomy but is never raised
	// by an engine backend; the HTTP edge raises it when the limiter denies.
	ViolationRateLimitExceeded ViolationType = "rate_limit_exceeded"
)

func (t ViolationType) String() string {
	return string(t)
}

// Severity grades a violation. Only high and critical block.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string {
	return string(s)
}

// Blocking reports whether this severity triggers the global block rule.
func (s Severity) Blocking() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// Violation is one structured finding from an evaluation.
type Violation struct {
	Type           ViolationType  `json:"type"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Context        map[string]any `json:"context,omitempty"`
	UserID         string         `json:"user_id,omitempty"`
	Blocked        bool           `json:"blocked"`
	Recommendation string         `json:"recommendation,omitempty"`
}

// Result is the outcome of one evaluation. Allowed always equals "no
// violation carries high or critical severity"; newResult enforces that and
// is the only way results are built inside this package.
type Result struct {
	Allowed         bool           `json:"allowed"`
	Violations      []Violation    `json:"violations"`
	ModifiedContent string         `json:"modified_content,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// newResult applies the fixed decision rule: a result is allowed exactly when
// no violation has high or critical severity. The rule is global and is not
// overridden per violation type.
func newResult(violations []Violation, metadata map[string]any) *Result {
	allowed := true
	for _, v := range violations {
		if v.Severity.Blocking() {
			allowed = false
			break
		}
	}
	if violations == nil {
		violations = []Violation{}
	}
	return &Result{
		Allowed:    allowed,
		Violations: violations,
		Metadata:   metadata,
	}
}

// Backend is one evaluation strategy. Exactly one backend is selected when
// the engine is constructed and it is never switched per request.
// Implementations must respect ctx cancellation on every call.
type Backend interface {
	Name() string
	EvaluateInput(ctx context.Context, message string, user *security.User, reqCtx map[string]any) (*Result, error)
	EvaluateOutput(ctx context.Context, response string, user *security.User, reqCtx map[string]any) (*Result, error)
	EvaluateToolCall(ctx context.Context, toolName string, args map[string]any, user *security.User) (*Result, error)
}

// Decision is the per-evaluation audit record consumed by the audit sink.
type Decision struct {
	Stage     string `json:"stage"` // input, output, tool_call
	Decision  string `json:"decision"`
	Reasoning string `json:"reasoning"`
	UserID    string `json:"user_id,omitempty"`
	Safe      bool   `json:"safe"`
}

// AuditSink receives one record per violation and one decision per
// evaluation. Implementations must never block the evaluation path; the
// engine treats every call as fire-and-forget.
type AuditSink interface {
	RecordViolation(v Violation)
	RecordDecision(d Decision)
}

// NopAuditSink discards all records.
type NopAuditSink struct{}

func (NopAuditSink) RecordViolation(Violation) {}
func (NopAuditSink) RecordDecision(Decision)   {}
