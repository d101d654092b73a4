package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/agent"
	"github.com/aegisgate/aegis/internal/guardrails"
	"github.com/aegisgate/aegis/internal/middleware"
	"github.com/aegisgate/aegis/internal/models"
	"github.com/aegisgate/aegis/internal/security"
	"github.com/aegisgate/aegis/internal/services/audit"
)

const maxMessageLength = 10000

// Credential material must never ride along in the request context.
var sensitiveContextKeys = map[string]bool{
	"password": true,
	"token":    true,
	"secret":   true,
	"key":      true,
}

// ChatRequest is the inbound chat payload. Identity comes from the access
// token, never from the body.
type ChatRequest struct {
	Message          string         `json:"message"`
	EnableGuardrails *bool          `json:"enable_guardrails,omitempty"`
	ConversationID   string         `json:"conversation_id,omitempty"`
	Context          map[string]any `json:"context,omitempty"`
}

// ChatResponse mirrors the evaluation outcome for one chat turn.
type ChatResponse struct {
	Reply             string                 `json:"reply"`
	Status            string                 `json:"status"` // success, blocked, error
	GuardrailsEnabled bool                   `json:"guardrails_enabled"`
	Blocked           bool                   `json:"blocked"`
	Violations        []guardrails.Violation `json:"violations"`
	ToolCalls         []agent.ToolCall       `json:"tool_calls"`
	TraceID           string                 `json:"trace_id"`
	Metadata          map[string]any         `json:"metadata,omitempty"`
	Timestamp         time.Time              `json:"timestamp"`
}

type ChatHandler struct {
	logger *zap.Logger
	engine *guardrails.Engine
	agent  agent.Agent
}

func NewChatHandler(engine *guardrails.Engine, ag agent.Agent, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		logger: logger.Named("chat"),
		engine: engine,
		agent:  ag,
	}
}

// Chat runs one guarded conversation turn: input evaluation, agent dispatch
// with per-tool gating, then output evaluation.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	traceID := uuid.NewString()

	user := middleware.UserFromContext(r.Context())
	if user == nil {
		sendError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		sendError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	if len(req.Message) > maxMessageLength {
		sendError(w, http.StatusBadRequest, "Message too long")
		return
	}

	for key := range req.Context {
		if sensitiveContextKeys[strings.ToLower(key)] {
			sendError(w, http.StatusBadRequest, "Context contains a disallowed key: "+key)
			return
		}
	}

	guarded := req.EnableGuardrails == nil || *req.EnableGuardrails

	reqCtx := map[string]any{"trace_id": traceID}
	for key, value := range req.Context {
		reqCtx[key] = value
	}
	if req.ConversationID != "" {
		reqCtx["conversation_id"] = req.ConversationID
	}

	var violations []guardrails.Violation

	if guarded {
		inputResult := h.engine.EvaluateInput(r.Context(), req.Message, user, reqCtx)
		violations = append(violations, inputResult.Violations...)

		if !inputResult.Allowed {
			h.logger.Warn("Input blocked",
				zap.String("trace_id", traceID),
				zap.String("user_id", user.ID))

			sendJSON(w, http.StatusOK, ChatResponse{
				Reply:             "Your request was blocked by content policy.",
				Status:            "blocked",
				GuardrailsEnabled: true,
				Blocked:           true,
				Violations:        violations,
				ToolCalls:         []agent.ToolCall{},
				TraceID:           traceID,
				Metadata: map[string]any{
					"processing_time_ms": float64(time.Since(start).Microseconds()) / 1000,
					"engine":             h.engine.BackendName(),
				},
				Timestamp: time.Now().UTC(),
			})
			return
		}
	}

	agentResp, err := h.agent.Respond(r.Context(), req.Message, user)
	if err != nil {
		h.logger.Error("Agent processing failed",
			zap.String("trace_id", traceID),
			zap.Error(err))

		sendJSON(w, http.StatusOK, ChatResponse{
			Reply:             "I encountered an error processing your request. Please try again.",
			Status:            "error",
			GuardrailsEnabled: guarded,
			Violations:        []guardrails.Violation{},
			ToolCalls:         []agent.ToolCall{},
			TraceID:           traceID,
			Metadata:          map[string]any{"error": err.Error()},
			Timestamp:         time.Now().UTC(),
		})
		return
	}

	reply := agentResp.Content
	if guarded && reply != "" {
		outputResult := h.engine.EvaluateOutput(r.Context(), reply, user, reqCtx)
		violations = append(violations, outputResult.Violations...)

		switch {
		case !outputResult.Allowed && outputResult.ModifiedContent != "":
			// Redacted form is safe to deliver.
			reply = outputResult.ModifiedContent
		case !outputResult.Allowed:
			reply = "I cannot provide that information due to content policy restrictions."
		case outputResult.ModifiedContent != "":
			reply = outputResult.ModifiedContent
		}
	}

	if violations == nil {
		violations = []guardrails.Violation{}
	}

	sendJSON(w, http.StatusOK, ChatResponse{
		Reply:             reply,
		Status:            "success",
		GuardrailsEnabled: guarded,
		Blocked:           false,
		Violations:        violations,
		ToolCalls:         agentResp.ToolCalls,
		TraceID:           traceID,
		Metadata: map[string]any{
			"processing_time_ms": float64(time.Since(start).Microseconds()) / 1000,
			"engine":             h.engine.BackendName(),
			"tools_used":         len(agentResp.ToolCalls),
		},
		Timestamp: time.Now().UTC(),
	})
}

// ToolsHandler lists the tools usable by the authenticated user.
type ToolsHandler struct {
	logger *zap.Logger
	rbac   *security.RBACManager
}

func NewToolsHandler(rbac *security.RBACManager, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{logger: logger.Named("tools"), rbac: rbac}
}

func (h *ToolsHandler) ListTools(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		sendError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"tools": h.rbac.AccessibleTools(user),
		"role":  user.Role.String(),
	})
}

// ViolationsHandler exposes the audit trail to administrators.
type ViolationsHandler struct {
	logger *zap.Logger
	rbac   *security.RBACManager
	audit  *audit.Logger
}

func NewViolationsHandler(auditLogger *audit.Logger, rbac *security.RBACManager, logger *zap.Logger) *ViolationsHandler {
	return &ViolationsHandler{
		logger: logger.Named("violations"),
		rbac:   rbac,
		audit:  auditLogger,
	}
}

func (h *ViolationsHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		sendError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	if !h.rbac.CheckPermission(user, security.PermAdminFunctions) {
		sendError(w, http.StatusForbidden, "Admin access required")
		return
	}

	filter := models.ViolationFilter{
		UserID:        r.URL.Query().Get("user_id"),
		ViolationType: r.URL.Query().Get("type"),
		Severity:      r.URL.Query().Get("severity"),
		Limit:         50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit <= 500 {
			filter.Limit = limit
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	records, total, err := h.audit.GetViolations(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to query violations", zap.Error(err))
		sendError(w, http.StatusInternalServerError, "Failed to query violations")
		return
	}

	sendJSON(w, http.StatusOK, map[string]any{
		"violations": records,
		"total":      total,
	})
}

// HealthHandler reports component health.
type HealthHandler struct {
	engine *guardrails.Engine
	checks map[string]func() error
}

func NewHealthHandler(engine *guardrails.Engine, checks map[string]func() error) *HealthHandler {
	return &HealthHandler{engine: engine, checks: checks}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"guardrails": h.engine.BackendName(),
	}
	status := "healthy"

	for name, check := range h.checks {
		if err := check(); err != nil {
			components[name] = "unhealthy: " + err.Error()
			status = "degraded"
		} else {
			components[name] = "healthy"
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	sendJSON(w, code, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC(),
	})
}

func sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}
