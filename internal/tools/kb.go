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

const kbMaxResults = 5

// KBSearchTool searches the internal knowledge base with keyword matching
// over title and content.
type KBSearchTool struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewKBSearchTool(db *gorm.DB, logger *zap.Logger) *KBSearchTool {
	return &KBSearchTool{db: db, logger: logger.Named("kb_search")}
}

func (t *KBSearchTool) Name() string { return "search_internal_kb" }

func (t *KBSearchTool) Description() string {
	return "Search the internal knowledge base for company policies, procedures and documentation"
}

type kbSearchHit struct {
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Source   string `json:"source,omitempty"`
	Category string `json:"category,omitempty"`
}

func (t *KBSearchTool) Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	maxResults := intArg(args, "max_results", kbMaxResults)
	if maxResults <= 0 || maxResults > kbMaxResults {
		maxResults = kbMaxResults
	}

	terms := searchTerms(query)
	if len(terms) == 0 {
		terms = []string{strings.ToLower(query)}
	}

	scope := t.db.WithContext(ctx).Where("category <> ?", "sensitive")
	match := t.db.Where("1 = 0")
	for _, term := range terms {
		pattern := "%" + term + "%"
		match = match.Or("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", pattern, pattern)
	}

	var articles []models.KBArticle
	err = scope.Where(match).Limit(maxResults).Find(&articles).Error
	if err != nil {
		return nil, fmt.Errorf("knowledge base search failed: %w", err)
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

	t.logger.Debug("Knowledge base search completed",
		zap.String("query", query),
		zap.Int("results", len(hits)))

	return &Result{
		Success: true,
		Data:    hits,
		Metadata: map[string]any{
			"query":        query,
			"result_count": len(hits),
		},
	}, nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "how": true,
	"can": true, "are": true, "our": true, "with": true, "about": true,
	"where": true, "when": true, "does": true, "you": true, "your": true,
}

// searchTerms turns a free-text question into keyword terms. Messages arrive
// verbatim from the chat surface, so full-phrase matching would miss almost
// everything.
func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})

	var terms []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func snippet(content string, max int) string {
	content = strings.ReplaceAll(content, "\n", " ")
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
