package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aegisgate/aegis/internal/models"
)

var DB *gorm.DB

type Config struct {
	DSN             string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel

	// Lite runs on an embedded SQLite database instead of PostgreSQL.
	Lite     bool
	LitePath string
}

func Initialize(cfg *Config) error {
	if cfg.DSN == "" {
		cfg.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.DSN == "" && !cfg.Lite {
		return fmt.Errorf("database DSN is required")
	}

	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 50
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = time.Hour
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = logger.Warn
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  cfg.LogLevel,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)

	dialector := postgres.Open(cfg.DSN)
	if cfg.Lite {
		path := cfg.LitePath
		if path == "" {
			path = ":memory:"
		}
		dialector = sqlite.Open(path)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db

	if err := Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := DB.AutoMigrate(
		&models.ViolationRecord{},
		&models.DecisionRecord{},
		&models.KBArticle{},
		&models.SupportTicket{},
		&models.EmployeeProfile{},
	); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	if err := createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func createIndexes() error {
	// Audit trail indexes for the admin query paths
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_violation_records_timestamp ON violation_records(timestamp)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_violation_records_user_id ON violation_records(user_id)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_violation_records_type ON violation_records(violation_type)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_violation_records_severity ON violation_records(severity)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_decision_records_timestamp ON decision_records(timestamp)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_decision_records_user_id ON decision_records(user_id)")

	// Workplace data indexes
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_kb_articles_category ON kb_articles(category)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_support_tickets_status ON support_tickets(status)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_support_tickets_created_by ON support_tickets(created_by)")
	DB.Exec("CREATE INDEX IF NOT EXISTS idx_employee_profiles_department ON employee_profiles(department)")

	return nil
}

func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func GetDB() *gorm.DB {
	return DB
}

func IsHealthy() bool {
	if DB == nil {
		return false
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return false
	}

	return sqlDB.Ping() == nil
}

// TestConnection checks whether a PostgreSQL connection can be established.
func TestConnection(ctx context.Context, cfg *Config) error {
	if cfg.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
