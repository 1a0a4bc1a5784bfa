package db

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vision_backend/internal/feature/annotation/adapters/gormstore"
)

// OpenDB opens the fallback annotation database and runs migrations.
// driver is "sqlite" (dsn is a file path, or ":memory:") or "postgres"
// (dsn is a standard connection string).
func OpenDB(driver, dsn string) *gorm.DB {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		if dsn == "" {
			dsn = "annotations.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		panic(fmt.Sprintf("unsupported db driver %q", driver))
	}

	// TranslateError maps driver duplicate-key errors to gorm.ErrDuplicatedKey,
	// which the repository relies on for id-conflict detection.
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		panic("failed to connect database")
	}

	if err := db.AutoMigrate(&gormstore.AnnotationModel{}); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	return db
}
