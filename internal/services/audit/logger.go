package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aegisgate/aegis/internal/guardrails"
	"github.com/aegisgate/aegis/internal/models"
	"github.com/aegisgate/aegis/internal/monitoring"
)

const defaultQueueSize = 1024

// Logger persists guardrail violations and decisions. Records are queued and
// written by a background goroutine so the evaluation path never waits on the
// database; when the queue is full the record is dropped and counted, never
// blocked on.
type Logger struct {
	db     *gorm.DB
	logger *zap.Logger

	queue chan any
	done  chan struct{}
	once  sync.Once
}

func NewLogger(db *gorm.DB, logger *zap.Logger) *Logger {
	l := &Logger{
		db:     db,
		logger: logger.Named("audit"),
		queue:  make(chan any, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go l.writeLoop()
	return l
}

// RecordViolation queues one violation record. Fire-and-forget.
func (l *Logger) RecordViolation(v guardrails.Violation) {
	contextJSON, err := json.Marshal(v.Context)
	if err != nil {
		contextJSON = nil
	}

	record := &models.ViolationRecord{
		ViolationType: v.Type.String(),
		Severity:      v.Severity.String(),
		Message:       v.Message,
		Blocked:       v.Blocked,
		UserID:        v.UserID,
		Context:       datatypes.JSON(contextJSON),
		Timestamp:     time.Now(),
	}
	l.enqueue(record)
}

// RecordDecision queues one decision record. Fire-and-forget.
func (l *Logger) RecordDecision(d guardrails.Decision) {
	record := &models.DecisionRecord{
		Stage:     d.Stage,
		Decision:  d.Decision,
		Reasoning: d.Reasoning,
		Safe:      d.Safe,
		UserID:    d.UserID,
		Timestamp: time.Now(),
	}
	l.enqueue(record)
}

func (l *Logger) enqueue(record any) {
	select {
	case l.queue <- record:
	default:
		monitoring.RecordAuditDrop()
		l.logger.Warn("Audit queue full, dropping record")
	}
}

func (l *Logger) writeLoop() {
	defer close(l.done)
	for record := range l.queue {
		if err := l.db.Create(record).Error; err != nil {
			l.logger.Error("Failed to write audit record", zap.Error(err))
		}
	}
}

// Close stops accepting records and waits for the queue to drain.
func (l *Logger) Close() {
	l.once.Do(func() {
		close(l.queue)
	})
	<-l.done
}

// GetViolations retrieves violation records with filtering and pagination,
// newest first.
func (l *Logger) GetViolations(ctx context.Context, filter models.ViolationFilter) ([]models.ViolationRecord, int64, error) {
	query := l.db.WithContext(ctx).Model(&models.ViolationRecord{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.ViolationType != "" {
		query = query.Where("violation_type = ?", filter.ViolationType)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Blocked != nil {
		query = query.Where("blocked = ?", *filter.Blocked)
	}
	if filter.StartTime != nil {
		query = query.Where("timestamp >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("timestamp <= ?", *filter.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count violation records: %w", err)
	}

	var records []models.ViolationRecord
	query = query.Order("timestamp DESC")
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch violation records: %w", err)
	}

	return records, total, nil
}

// GetDecisions retrieves the most recent decision records for a user.
func (l *Logger) GetDecisions(ctx context.Context, userID string, limit int) ([]models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []models.DecisionRecord
	query := l.db.WithContext(ctx).Model(&models.DecisionRecord{}).Order("timestamp DESC").Limit(limit)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch decision records: %w", err)
	}
	return records, nil
}
