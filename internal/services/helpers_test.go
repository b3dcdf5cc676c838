package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ymzhao/go-car-advisor/internal/domain"
	"github.com/ymzhao/go-car-advisor/internal/prompt"
)

// newServiceTestDB opens a throwaway SQLite database with the full schema.
func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := db.AutoMigrate(
		&domain.Conversation{},
		&domain.Message{},
		&domain.Car{},
		&domain.Recommendation{},
		&domain.NextStep{},
		&domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedTestCatalog inserts a handful of catalog rows.
func seedTestCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	cars := []domain.Car{
		{ID: "car-1", Make: "Toyota", Model: "RAV4", Category: "SUV", FuelType: "hybrid"},
		{ID: "car-2", Make: "Toyota", Model: "Corolla", Category: "sedan", FuelType: "gasoline"},
		{ID: "car-3", Make: "Honda", Model: "CR-V", Category: "SUV", FuelType: "gasoline"},
	}
	for _, c := range cars {
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("seed %s: %v", c.ID, err)
		}
	}
}

// fakeModel is a ModelClient returning canned output. It records the last
// assembled prompt so tests can assert on windowing and directives.
type fakeModel struct {
	text      string
	err       error
	fragments []string
	lastInput prompt.Prompt
	calls     int
}

func (f *fakeModel) Generate(_ context.Context, p prompt.Prompt) (string, error) {
	f.calls++
	f.lastInput = p
	return f.text, f.err
}

func (f *fakeModel) GenerateStream(ctx context.Context, p prompt.Prompt, fn func(string) error) (string, error) {
	f.calls++
	f.lastInput = p
	if f.err != nil {
		return "", f.err
	}
	frags := f.fragments
	if frags == nil {
		frags = []string{f.text}
	}
	for _, fr := range frags {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := fn(fr); err != nil {
			return "", err
		}
	}
	return f.text, nil
}

func (f *fakeModel) Name() string { return "fake-model" }

// newTestTurnService wires a TurnService over a fresh DB, the fake model,
// and the real catalog service.
func newTestTurnService(t *testing.T, fm *fakeModel) (*TurnService, *gorm.DB) {
	t.Helper()
	db := newServiceTestDB(t)
	seedTestCatalog(t, db)
	return NewTurnService(db, fm, NewCatalogService(db)), db
}
