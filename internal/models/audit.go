package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ViolationRecord is one persisted guardrail finding.
type ViolationRecord struct {
	BaseModel

	ViolationType string `gorm:"type:varchar(50);not null;index" json:"violation_type"`
	Severity      string `gorm:"type:varchar(20);not null;index" json:"severity"`
	Message       string `gorm:"not null" json:"message"`
	Blocked       bool   `gorm:"not null" json:"blocked"`

	UserID    string `gorm:"index" json:"user_id,omitempty"`
	RequestID string `gorm:"index" json:"request_id,omitempty"`

	Context datatypes.JSON `json:"context,omitempty"`

	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

// DecisionRecord is one persisted evaluation outcome, one per call to the
// guardrails engine.
type DecisionRecord struct {
	BaseModel

	Stage     string `gorm:"type:varchar(20);not null;index" json:"stage"`
	Decision  string `gorm:"type:varchar(10);not null;index" json:"decision"`
	Reasoning string `json:"reasoning"`
	Safe      bool   `gorm:"not null" json:"safe"`

	UserID    string `gorm:"index" json:"user_id,omitempty"`
	RequestID string `gorm:"index" json:"request_id,omitempty"`

	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

func (v *ViolationRecord) BeforeCreate(tx *gorm.DB) error {
	if err := v.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now()
	}
	return nil
}

func (d *DecisionRecord) BeforeCreate(tx *gorm.DB) error {
	if err := d.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	return nil
}

// ViolationFilter selects violation records for the audit query API.
type ViolationFilter struct {
	UserID        string     `json:"user_id,omitempty"`
	ViolationType string     `json:"violation_type,omitempty"`
	Severity      string     `json:"severity,omitempty"`
	Blocked       *bool      `json:"blocked,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Offset        int        `json:"offset,omitempty"`
	Limit         int        `json:"limit,omitempty"`
}
