package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aman-churiwal/chat-admission/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Postgres struct {
	DB *gorm.DB
}

// dsn - Data Source Name
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := Open(postgres.Open(dsn), logger.Warn)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// Open wraps any gorm dialector; tests use it with SQLite
func Open(dialector gorm.Dialector, level logger.LogLevel) (*Postgres, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Postgres{DB: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (p *Postgres) AutoMigrate() error {
	return p.DB.AutoMigrate(
		&models.CommunityConfig{},
		&models.CommunityOperator{},
		&models.RequestRecord{},
		&models.UserDailyUsage{},
		&models.CommunityDailyUsage{},
		&models.Reviewer{},
		&models.APIKey{},
		&models.AuditEntry{},
	)
}

func (p *Postgres) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

func (p *Postgres) Transaction(ctx context.Context, fn func(*gorm.DB) error) error {
	return p.DB.WithContext(ctx).Transaction(fn)
}
