package tools

import (
	"time"

	"gorm.io/gorm"

	"github.com/aegisgate/aegis/internal/models"
)

// Seed loads sample workplace data for lite mode and local development. It is
// idempotent: an already-populated knowledge base is left alone.
func Seed(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.KBArticle{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	articles := []models.KBArticle{
		{
			Title:    "Vacation Policy",
			Content:  "Full-time employees accrue 25 vacation days per year. Requests go through the HR portal and need manager approval at least two weeks in advance.",
			Source:   "hr-handbook.md",
			Category: "hr",
		},
		{
			Title:    "Expense Reimbursement",
			Content:  "Submit expense reports within 30 days of purchase. Receipts are required for any amount above 25 EUR. Reimbursement lands with the next payroll run.",
			Source:   "finance-guide.md",
			Category: "finance",
		},
		{
			Title:    "VPN Setup",
			Content:  "Install the corporate VPN client from the software portal, then authenticate with your directory credentials and the second factor enrolled at onboarding.",
			Source:   "it-runbook.md",
			Category: "it",
		},
		{
			Title:    "Incident Escalation",
			Content:  "Severity-1 incidents page the on-call engineer immediately. Everything else starts as a support ticket and is triaged within one business day.",
			Source:   "it-runbook.md",
			Category: "it",
		},
		{
			Title:    "Executive Compensation Bands",
			Content:  "Restricted document. Compensation band details for director level and above.",
			Source:   "restricted/comp-bands.md",
			Category: "sensitive",
		},
	}
	if err := db.Create(&articles).Error; err != nil {
		return err
	}

	profiles := []models.EmployeeProfile{
		{
			EmployeeID: "E-1001",
			FirstName:  "Dana",
			LastName:   "Kovacs",
			Email:      "dana.kovacs@example.com",
			Phone:      "555-201-3344",
			Department: "engineering",
			Title:      "Platform Engineer",
			ManagerID:  "E-1000",
			HiredAt:    time.Date(2021, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			EmployeeID: "E-1002",
			FirstName:  "Priya",
			LastName:   "Nair",
			Email:      "priya.nair@example.com",
			Phone:      "555-201-8821",
			Department: "support",
			Title:      "Support Specialist",
			ManagerID:  "E-1000",
			HiredAt:    time.Date(2022, 9, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			EmployeeID: "E-1000",
			FirstName:  "Marcus",
			LastName:   "Webb",
			Email:      "marcus.webb@example.com",
			Phone:      "555-200-1100",
			Department: "engineering",
			Title:      "Engineering Manager",
			HiredAt:    time.Date(2019, 6, 10, 0, 0, 0, 0, time.UTC),
		},
	}
	if err := db.Create(&profiles).Error; err != nil {
		return err
	}

	tickets := []models.SupportTicket{
		{
			Title:       "Laptop battery swelling",
			Description: "Battery on the issued laptop is visibly swollen, needs replacement.",
			Priority:    "high",
			Status:      "open",
			Category:    "it",
			CreatedBy:   "E-1002",
		},
		{
			Title:       "Access to analytics dashboard",
			Description: "Requesting viewer access to the quarterly analytics dashboard.",
			Priority:    "low",
			Status:      "resolved",
			Category:    "it",
			CreatedBy:   "E-1001",
			AssignedTo:  "E-1000",
		},
	}
	return db.Create(&tickets).Error
}
