package guardrails

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/monitoring"
	"github.com/aegisgate/aegis/internal/security"
)

// Phrase tables for the deterministic baseline backend. Matching is
// case-insensitive substring search; the first hit wins per table.
var (
	injectionPhrases = []string{
		"ignore previous instructions",
		"you are now",
		"forget everything",
		"new role:",
		"system:",
	}

	jailbreakPhrases = []string{
		"pretend you are",
		"act as if",
		"simulate",
		"roleplay as",
	}

	restrictedTopics = []string{
		"salary", "compensation", "merger", "acquisition",
		"confidential", "classified", "security procedure",
	}

	credentialMarkers = []string{"sk-", "Bearer ", "password", "api_key"}

	sqlInjectionTokens = []string{"';", "UNION", "DROP", "DELETE"}
	cmdInjectionTokens = []string{";", "&&", "|", "$("}
)

// Input evaluation blocks only on these PII types, and only at or above this
// confidence.
var sensitiveInputPII = map[security.PIIType]struct{}{
	security.PIITypeSSN:        {},
	security.PIITypeCreditCard: {},
	security.PIITypeAPIKey:     {},
	security.PIITypePassword:   {},
}

const sensitiveInputThreshold = 0.8

// BaselineBackend is the deterministic in-process strategy. It performs only
// pattern scans, never suspends on anything external and never returns an
// error.
type BaselineBackend struct {
	logger   *zap.Logger
	detector *security.Detector
	redactor *security.Redactor
	rbac     *security.RBACManager
}

func NewBaselineBackend(detector *security.Detector, redactor *security.Redactor, rbac *security.RBACManager, logger *zap.Logger) *BaselineBackend {
	return &BaselineBackend{
		logger:   logger.Named("baseline_guardrails"),
		detector: detector,
		redactor: redactor,
		rbac:     rbac,
	}
}

func (b *BaselineBackend) Name() string {
	return "baseline"
}

func (b *BaselineBackend) EvaluateInput(ctx context.Context, message string, user *security.User, reqCtx map[string]any) (*Result, error) {
	var violations []Violation
	lower := strings.ToLower(message)

	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			violations = append(violations, Violation{
				Type:     ViolationPromptInjection,
				Severity: SeverityHigh,
				Message:  fmt.Sprintf("Potential prompt injection detected: %q", phrase),
				Context: map[string]any{
					"pattern":      phrase,
					"input_length": len(message),
				},
				UserID:         user.ID,
				Blocked:        true,
				Recommendation: "Rephrase your request without instruction manipulation.",
			})
			break
		}
	}

	for _, phrase := range jailbreakPhrases {
		if strings.Contains(lower, phrase) {
			violations = append(violations, Violation{
				Type:           ViolationJailbreakAttempt,
				Severity:       SeverityHigh,
				Message:        fmt.Sprintf("Potential jailbreak attempt detected: %q", phrase),
				Context:        map[string]any{"pattern": phrase},
				UserID:         user.ID,
				Blocked:        true,
				Recommendation: "Please make straightforward requests without roleplaying.",
			})
			break
		}
	}

	if piiTypes := b.sensitivePII(message); len(piiTypes) > 0 {
		violations = append(violations, Violation{
			Type:           ViolationPIIDetected,
			Severity:       SeverityCritical,
			Message:        "Sensitive PII detected in input",
			Context:        map[string]any{"pii_types": piiTypes},
			UserID:         user.ID,
			Blocked:        true,
			Recommendation: "Please remove sensitive information and try again.",
		})
	}

	// Topic restrictions apply to everyone below admin. Medium severity does
	// not block under the global rule; the finding is still recorded and
	// audited (see DESIGN.md).
	if user.Role != security.RoleAdmin && user.Role != security.RoleSystem {
		for _, topic := range restrictedTopics {
			if strings.Contains(lower, topic) {
				violations = append(violations, Violation{
					Type:           ViolationRestrictedTopic,
					Severity:       SeverityMedium,
					Message:        fmt.Sprintf("Access to restricted topic %q denied", topic),
					Context:        map[string]any{"topic": topic, "user_role": user.Role.String()},
					UserID:         user.ID,
					Blocked:        false,
					Recommendation: fmt.Sprintf("Contact the appropriate department for %s-related information.", topic),
				})
				break
			}
		}
	}

	return newResult(violations, map[string]any{
		"engine":       b.Name(),
		"input_length": len(message),
		"user_role":    user.Role.String(),
	}), nil
}

func (b *BaselineBackend) EvaluateOutput(ctx context.Context, response string, user *security.User, reqCtx map[string]any) (*Result, error) {
	// Credential leakage short-circuits: the response is withheld outright
	// and no further output checks run.
	for _, marker := range credentialMarkers {
		if strings.Contains(response, marker) {
			violation := Violation{
				Type:           ViolationInformationLeakage,
				Severity:       SeverityCritical,
				Message:        "Potential credentials detected in output",
				Context:        map[string]any{"pattern": marker},
				UserID:         user.ID,
				Blocked:        true,
				Recommendation: "Response blocked due to potential credential exposure.",
			}
			return newResult([]Violation{violation}, map[string]any{
				"engine":         b.Name(),
				"blocked_reason": "credential_exposure",
			}), nil
		}
	}

	var violations []Violation
	modified := ""

	redacted, applied := b.redactor.RedactText(response, "*", false, "")
	if len(applied) > 0 {
		piiTypes := make([]string, len(applied))
		for i, m := range applied {
			piiTypes[i] = m.Type.String()
			monitoring.RecordRedaction(m.Type.String())
		}
		violations = append(violations, Violation{
			Type:     ViolationOutputPII,
			Severity: SeverityHigh,
			Message:  "PII detected and redacted in output",
			Context:  map[string]any{"pii_types": piiTypes},
			UserID:   user.ID,
			// The content is replaced by its redacted form rather than
			// withheld; callers deliver ModifiedContent when present.
			Blocked:        false,
			Recommendation: "PII has been automatically redacted.",
		})
		modified = redacted
	}

	result := newResult(violations, map[string]any{
		"engine":        b.Name(),
		"output_length": len(response),
		"redacted":      len(applied) > 0,
	})
	result.ModifiedContent = modified
	return result, nil
}

func (b *BaselineBackend) EvaluateToolCall(ctx context.Context, toolName string, args map[string]any, user *security.User) (*Result, error) {
	var violations []Violation

	if !b.rbac.CheckToolAccess(user, toolName) {
		violations = append(violations, Violation{
			Type:           ViolationUnauthorizedTool,
			Severity:       SeverityHigh,
			Message:        fmt.Sprintf("Unauthorized tool access: %s", toolName),
			Context:        map[string]any{"tool": toolName, "user_role": user.Role.String()},
			UserID:         user.ID,
			Blocked:        true,
			Recommendation: fmt.Sprintf("Tool %q requires additional privileges.", toolName),
		})
	}

	for argName, argValue := range args {
		value, ok := argValue.(string)
		if !ok {
			continue
		}

		upper := strings.ToUpper(value)
		for _, token := range sqlInjectionTokens {
			if strings.Contains(upper, strings.ToUpper(token)) {
				violations = append(violations, Violation{
					Type:           ViolationToolInjection,
					Severity:       SeverityCritical,
					Message:        fmt.Sprintf("Potential SQL injection in %s", argName),
					Context:        map[string]any{"arg": argName, "pattern": token},
					UserID:         user.ID,
					Blocked:        true,
					Recommendation: "Please remove potentially harmful SQL patterns.",
				})
				break
			}
		}

		for _, token := range cmdInjectionTokens {
			if strings.Contains(value, token) {
				violations = append(violations, Violation{
					Type:           ViolationToolInjection,
					Severity:       SeverityCritical,
					Message:        fmt.Sprintf("Potential command injection in %s", argName),
					Context:        map[string]any{"arg": argName, "pattern": token},
					UserID:         user.ID,
					Blocked:        true,
					Recommendation: "Please remove potentially harmful command patterns.",
				})
				break
			}
		}
	}

	return newResult(violations, map[string]any{
		"engine":    b.Name(),
		"tool":      toolName,
		"user_role": user.Role.String(),
	}), nil
}

func (b *BaselineBackend) sensitivePII(message string) []string {
	var piiTypes []string
	for _, m := range b.detector.Detect(message, "") {
		if m.Confidence < sensitiveInputThreshold {
			continue
		}
		if _, sensitive := sensitiveInputPII[m.Type]; sensitive {
			piiTypes = append(piiTypes, m.Type.String())
		}
	}
	return piiTypes
}
