package models

import (
	"time"

	"gorm.io/datatypes"
)

// KBArticle is one searchable knowledge-base document chunk.
type KBArticle struct {
	BaseModel

	Title    string `gorm:"not null;index" json:"title"`
	Content  string `gorm:"not null" json:"content"`
	Source   string `json:"source,omitempty"`
	Category string `gorm:"index" json:"category,omitempty"`
}

// SupportTicket is a ticket created through the create_ticket tool.
type SupportTicket struct {
	BaseModel

	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"not null" json:"description"`
	Priority    string `gorm:"type:varchar(10);not null;index" json:"priority"` // low, medium, high
	Status      string `gorm:"type:varchar(20);not null;index" json:"status"`   // open, in_progress, resolved
	Category    string `gorm:"index" json:"category,omitempty"`
	CreatedBy   string `gorm:"index" json:"created_by"`
	AssignedTo  string `gorm:"index" json:"assigned_to,omitempty"`
}

// EmployeeProfile backs the get_user_profile tool. Sensitive fields pass
// through the redactor before leaving the tool layer.
type EmployeeProfile struct {
	BaseModel

	EmployeeID string         `gorm:"uniqueIndex;not null" json:"employee_id"`
	FirstName  string         `gorm:"not null" json:"first_name"`
	LastName   string         `gorm:"not null" json:"last_name"`
	Email      string         `json:"email"`
	Phone      string         `json:"phone,omitempty"`
	Department string         `gorm:"index" json:"department"`
	Title      string         `json:"title"`
	ManagerID  string         `json:"manager_id,omitempty"`
	HiredAt    time.Time      `json:"hired_at"`
	Extra      datatypes.JSON `json:"extra,omitempty"`
}
