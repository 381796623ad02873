package db

import (
	"fmt"
	"log/slog"

	"tabula/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

// NewStore connects to postgres, or returns a nil-DB store when no DSN is
// configured. Callers treat a nil DB as the signal to wire the in-memory
// stores instead.
func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		slog.Info("POSTGRES_DSN not set; starting with in-memory stores")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

// AutoMigrate creates or updates every table the service owns. The five
// record head tables share one row shape and are migrated per table name.
func (s *Store) AutoMigrate() error {
	if s.DB == nil {
		return nil
	}
	for _, table := range recordTables {
		if err := s.DB.Table(table).AutoMigrate(&RecordRow{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return s.DB.AutoMigrate(
		&RecordVersionModel{},
		&ActorModel{},
		&SourceFetchModel{},
		&SourceHealthModel{},
		&HealthSnapshotModel{},
		&SourceAssessmentModel{},
	)
}
