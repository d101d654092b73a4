package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aegisgate/aegis/internal/models"
	"github.com/aegisgate/aegis/internal/security"
)

// SensitiveDocsTool retrieves documents from the restricted KB category. The
// allow-list keeps employees away from the tool entirely; the permission
// check here is the data-level backstop for misconfigured policies.
type SensitiveDocsTool struct {
	db     *gorm.DB
	rbac   *security.RBACManager
	logger *zap.Logger
}

func NewSensitiveDocsTool(db *gorm.DB, rbac *security.RBACManager, logger *zap.Logger) *SensitiveDocsTool {
	return &SensitiveDocsTool{db: db, rbac: rbac, logger: logger.Named("sensitive_docs")}
}

func (t *SensitiveDocsTool) Name() string { return "access_sensitive_docs" }

func (t *SensitiveDocsTool) Description() string {
	return "Retrieve documents from the restricted knowledge base category"
}

func (t *SensitiveDocsTool) Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error) {
	if !t.rbac.CheckPermission(user, security.PermAccessSensitiveDocs) {
		t.logger.Warn("Sensitive document access denied",
			zap.String("user_id", user.ID),
			zap.String("role", user.Role.String()))
		return &Result{Success: false, Error: "access to sensitive documents denied"}, nil
	}

	query, err := stringArg(args, "query")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	pattern := "%" + strings.ToLower(query) + "%"

	var articles []models.KBArticle
	err = t.db.WithContext(ctx).
		Where("category = ?", "sensitive").
		Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", pattern, pattern).
		Limit(kbMaxResults).
		Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("sensitive document search failed: %w", err)
	}

	hits := make([]kbSearchHit, len(articles))
	for i, a := range articles {
		hits[i] = kbSearchHit{
			Title:    a.Title,
			Snippet:  snippet(a.Content, 200),
			Source:   a.Source,
			Category: a.Category,
		}
	}

	return &Result{
		Success:  true,
		Data:     hits,
		Metadata: map[string]any{"query": query, "result_count": len(hits)},
	}, nil
}
