// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver), schema migrations, and optional catalog seeding.
package repo

import (
	"context"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/ymzhao/go-car-advisor/internal/domain"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// EnableTracing attaches the GORM OpenTelemetry plugin so database calls show
// up as spans. Metrics are handled by the HTTP layer, so only tracing is
// enabled here.
func EnableTracing(db *gorm.DB) error {
	return db.Use(tracing.NewPlugin(tracing.WithoutMetrics()))
}

// AutoMigrate creates or updates the schema for all persistence models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Conversation{},
		&domain.Message{},
		&domain.Car{},
		&domain.Recommendation{},
		&domain.NextStep{},
		&domain.Idempotency{},
	)
}

// SeedCars inserts catalog rows that do not exist yet (matched by make+model).
// Intended for development and tests; production catalogs are maintained out
// of band.
func SeedCars(ctx context.Context, db *gorm.DB, cars []domain.Car) error {
	for i := range cars {
		var count int64
		if err := db.WithContext(ctx).
			Model(&domain.Car{}).
			Where("make = ? AND model = ?", cars[i].Make, cars[i].Model).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if cars[i].ID == "" {
			cars[i].ID = uuid.NewString()
		}
		if err := db.WithContext(ctx).Create(&cars[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
