package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/security"
	"github.com/aegisgate/aegis/pkg/circuitbreaker"
)

// RulesBackend is the production strategy: evaluations are delegated to a
// remote policy-rules service over HTTP. Any transport, status or decode
// failure surfaces as an error; the engine converts every backend error into
// a fail-closed blocked result, so a rules outage can never allow a request
// through.
type RulesBackend struct {
	logger     *zap.Logger
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.SimpleBreaker
}

// RulesConfig configures the remote rules service connection.
type RulesConfig struct {
	URL     string
	Timeout time.Duration
}

func NewRulesBackend(cfg RulesConfig, logger *zap.Logger) *RulesBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RulesBackend{
		logger:  logger.Named("rules_guardrails"),
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (r *RulesBackend) Name() string {
	return "rules"
}

type rulesUser struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Department string `json:"department,omitempty"`
}

type rulesRequest struct {
	Stage    string         `json:"stage"`
	Content  string         `json:"content,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	User     rulesUser      `json:"user"`
	Context  map[string]any `json:"context,omitempty"`
}

type rulesViolation struct {
	Type           string         `json:"type"`
	Severity       string         `json:"severity"`
	Message        string         `json:"message"`
	Context        map[string]any `json:"context,omitempty"`
	Blocked        bool           `json:"blocked"`
	Recommendation string         `json:"recommendation,omitempty"`
}

type rulesResponse struct {
	Violations      []rulesViolation `json:"violations"`
	ModifiedContent string           `json:"modified_content,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

func (r *RulesBackend) EvaluateInput(ctx context.Context, message string, user *security.User, reqCtx map[string]any) (*Result, error) {
	return r.evaluate(ctx, rulesRequest{
		Stage:   "input",
		Content: message,
		User:    toRulesUser(user),
		Context: reqCtx,
	}, user)
}

func (r *RulesBackend) EvaluateOutput(ctx context.Context, response string, user *security.User, reqCtx map[string]any) (*Result, error) {
	return r.evaluate(ctx, rulesRequest{
		Stage:   "output",
		Content: response,
		User:    toRulesUser(user),
		Context: reqCtx,
	}, user)
}

func (r *RulesBackend) EvaluateToolCall(ctx context.Context, toolName string, args map[string]any, user *security.User) (*Result, error) {
	return r.evaluate(ctx, rulesRequest{
		Stage:    "tool_call",
		ToolName: toolName,
		Args:     args,
		User:     toRulesUser(user),
	}, user)
}

func (r *RulesBackend) evaluate(ctx context.Context, req rulesRequest, user *security.User) (*Result, error) {
	// Skip the network round-trip while the service is known to be down. The
	// engine fail-closes on the error either way.
	if r.breaker.IsOpen() {
		return nil, fmt.Errorf("rules service circuit breaker is open")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rules request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		r.breaker.RecordFailure()
		return nil, fmt.Errorf("rules service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.breaker.RecordFailure()
		return nil, fmt.Errorf("rules service returned status %d", resp.StatusCode)
	}

	var decoded rulesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		r.breaker.RecordFailure()
		return nil, fmt.Errorf("failed to decode rules response: %w", err)
	}
	r.breaker.RecordSuccess()

	violations := make([]Violation, 0, len(decoded.Violations))
	for _, v := range decoded.Violations {
		violations = append(violations, Violation{
			Type:           mapRemoteViolationType(v.Type),
			Severity:       mapRemoteSeverity(v.Severity),
			Message:        v.Message,
			Context:        v.Context,
			UserID:         user.ID,
			Blocked:        v.Blocked,
			Recommendation: v.Recommendation,
		})
	}

	metadata := decoded.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["engine"] = r.Name()

	result := newResult(violations, metadata)
	result.ModifiedContent = decoded.ModifiedContent
	return result, nil
}

// HealthCheck probes the rules service. The engine factory uses it once at
// startup to decide whether this backend is usable at all.
func (r *RulesBackend) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rules service health returned status %d", resp.StatusCode)
	}
	return nil
}

func toRulesUser(user *security.User) rulesUser {
	return rulesUser{
		ID:         user.ID,
		Role:       user.Role.String(),
		Department: user.Department,
	}
}

// mapRemoteViolationType maps the rules service's type names onto the
// internal taxonomy. Unknown types degrade to prompt_injection rather than
// being dropped.
func mapRemoteViolationType(remote string) ViolationType {
	switch remote {
	case "prompt_injection":
		return ViolationPromptInjection
	case "jailbreak", "jailbreak_attempt":
		return ViolationJailbreakAttempt
	case "pii", "pii_detected":
		return ViolationPIIDetected
	case "unauthorized_tool":
		return ViolationUnauthorizedTool
	case "restricted_topic":
		return ViolationRestrictedTopic
	case "output_pii":
		return ViolationOutputPII
	case "information_leak", "information_leakage":
		return ViolationInformationLeakage
	case "tool_injection":
		return ViolationToolInjection
	case "rate_limit_exceeded":
		return ViolationRateLimitExceeded
	default:
		return ViolationPromptInjection
	}
}

func mapRemoteSeverity(remote string) Severity {
	switch Severity(remote) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return Severity(remote)
	default:
		return SeverityMedium
	}
}
