package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aegisgate/aegis/internal/security"
)

// WebSearchTool is a placeholder for an external search integration. It
// returns a canned pointer instead of reaching the network.
// TODO: wire to the search provider once the egress proxy is available.
type WebSearchTool struct {
	logger *zap.Logger
}

func NewWebSearchTool(logger *zap.Logger) *WebSearchTool {
	return &WebSearchTool{logger: logger.Named("web_search")}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the public web for general information"
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	return &Result{
		Success: true,
		Data: []map[string]any{
			{
				"title":   fmt.Sprintf("Results for %q", query),
				"snippet": "External search is not enabled in this deployment.",
			},
		},
		Metadata: map[string]any{"query": query, "provider": "none"},
	}, nil
}
