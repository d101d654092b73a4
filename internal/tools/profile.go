package tools

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aegisgate/aegis/internal/models"
	"github.com/aegisgate/aegis/internal/security"
)

// UserProfileTool looks up an employee profile. Contact fields are redacted
// unless the caller holds the view_pii permission.
type UserProfileTool struct {
	db       *gorm.DB
	rbac     *security.RBACManager
	redactor *security.Redactor
	logger   *zap.Logger
}

func NewUserProfileTool(db *gorm.DB, rbac *security.RBACManager, redactor *security.Redactor, logger *zap.Logger) *UserProfileTool {
	return &UserProfileTool{
		db:       db,
		rbac:     rbac,
		redactor: redactor,
		logger:   logger.Named("user_profile"),
	}
}

func (t *UserProfileTool) Name() string { return "get_user_profile" }

func (t *UserProfileTool) Description() string {
	return "Look up an employee profile from the staff directory"
}

func (t *UserProfileTool) Execute(ctx context.Context, args map[string]any, user *security.User) (*Result, error) {
	employeeID, err := stringArg(args, "employee_id")
	if err != nil {
		return &Result{Success: false, Error: err.Error()}, nil
	}

	var profile models.EmployeeProfile
	err = t.db.WithContext(ctx).Where("employee_id = ?", employeeID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Result{Success: false, Error: fmt.Sprintf("no profile for employee %s", employeeID)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("profile lookup failed: %w", err)
	}

	data := map[string]any{
		"employee_id": profile.EmployeeID,
		"first_name":  profile.FirstName,
		"last_name":   profile.LastName,
		"email":       profile.Email,
		"phone":       profile.Phone,
		"department":  profile.Department,
		"title":       profile.Title,
		"manager_id":  profile.ManagerID,
	}

	redacted := false
	if !t.rbac.CheckPermission(user, security.PermViewPII) {
		data, _ = t.redactor.RedactMap(data, "*", true)
		redacted = true
	}

	t.logger.Debug("Profile lookup",
		zap.String("employee_id", employeeID),
		zap.String("requested_by", user.ID),
		zap.Bool("redacted", redacted))

	return &Result{
		Success:  true,
		Data:     data,
		Metadata: map[string]any{"redacted": redacted},
	}, nil
}
