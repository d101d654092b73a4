package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aegisgate/aegis/internal/models"
	"github.com/aegisgate/aegis/internal/security"
)

const queryMaxLimit = 25

// QueryDatabaseTool runs pre-shaped queries against the workplace tables.
// The table name selects a fixed query; filters only ever bind as parameters,
// so no caller input reaches the SQL text.
type QueryDatabaseTool struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewQueryDatabaseTool(db *gorm.DB, logger *zap.Logger) *QueryDatabaseTool {
	return &QueryDatabaseTool{db: db, logger: logger.Named("query_database")}
}

func (t *QueryDatabaseTool) Name() string { return "query_database" }

func (t *QueryDatabaseTool) Description() string {
	return "Query workplace data: employees (staff directory) or tickets (support requests)"
}

func (t *QueryDatabaseTool) Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error) {
	table, err := stringArg(args, "table")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	limit := intArg(args, "limit", 10)
	if limit <= 0 || limit > queryMaxLimit {
		limit = queryMaxLimit
	}

	filters, _ := args["filters"].(map[string]any)

	var (
		rows  any
		count int
	)

	switch table {
	case "employees":
		query := t.db.WithContext(ctx).Model(&models.EmployeeProfile{})
		if department, ok := filters["department"].(string); ok && department != "" {
			query = query.Where("department = ?", department)
		}
		var employees []models.EmployeeProfile
		if err := query.Order("hired_at DESC").Limit(limit).Find(&employees).Error; err != nil {
			return nil, fmt.Errorf("employee query failed: %w", err)
		}
		// Directory fields only; contact details stay out of bulk queries.
		summaries := make([]map[string]any, len(employees))
		for i, e := range employees {
			summaries[i] = map[string]any{
				"employee_id": e.EmployeeID,
				"first_name":  e.FirstName,
				"last_name":   e.LastName,
				"department":  e.Department,
				"title":       e.Title,
			}
		}
		rows, count = summaries, len(summaries)

	case "tickets":
		query := t.db.WithContext(ctx).Model(&models.SupportTicket{})
		if status, ok := filters["status"].(string); ok && status != "" {
			query = query.Where("status = ?", status)
		}
		if priority, ok := filters["priority"].(string); ok && priority != "" {
			query = query.Where("priority = ?", priority)
		}
		var tickets []models.SupportTicket
		if err := query.Order("created_at DESC").Limit(limit).Find(&tickets).Error; err != nil {
			return nil, fmt.Errorf("ticket query failed: %w", err)
		}
		rows, count = tickets, len(tickets)

	default:
		return &Result{Success: false, Error: fmt.Sprintf("unsupported table %q, available: employees, tickets", table)}, nil
	}

	t.logger.Debug("Database query completed",
		zap.String("table", table),
		zap.Int("rows", count),
		zap.String("user_id", user.ID))

	return &Result{
		Success: true,
		Data:    rows,
		Metadata: map[string]any{
			"table":     table,
			"row_count": count,
		},
	}, nil
}
