package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aegisgate/aegis/internal/models"
	"github.com/aegisgate/aegis/internal/security"
)

// CreateTicketTool files a support ticket on behalf of the requesting user.
type CreateTicketTool struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCreateTicketTool(db *gorm.DB, logger *zap.Logger) *CreateTicketTool {
	return &CreateTicketTool{db: db, logger: logger.Named("create_ticket")}
}

func (t *CreateTicketTool) Name() string { return "create_ticket" }

func (t *CreateTicketTool) Description() string {
	return "Create a support ticket for IT, HR or facilities requests"
}

var validPriorities = map[string]struct{}{"low": {}, "medium": {}, "high": {}}

func (t *CreateTicketTool) Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error) {
	title, err := stringArg(args, "title")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}
	description, err := stringArg(args, "description")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	priority := "medium"
	if raw, ok := args["priority"].(string); ok && raw != "" {
		if _, valid := validPriorities[raw]; !valid {
			return &Result{Success: false, Error: fmt.Sprintf("invalid priority %q, must be low, medium or high", raw)}, nil
		}
		priority = raw
	}

	category, _ := args["category"].(string)

	ticket := models.SupportTicket{
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      "open",
		Category:    category,
		CreatedBy:   user.ID,
	}

	if err := t.db.WithContext(ctx).Create(&ticket).Error; err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	t.logger.Info("Support ticket created",
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("priority", priority),
		zap.String("created_by", user.ID))

	return &Result{
		Success: true,
		Data: map[string]any{
			"ticket_id": ticket.ID.String(),
			"status":    ticket.Status,
			"priority":  ticket.Priority,
		},
	}, nil
}
