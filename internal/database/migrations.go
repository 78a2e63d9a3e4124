package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/volunteer/backend/internal/opportunities"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDistinctCategorySlugs = "2026-10-16_distinct_category_slugs"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDistinctCategorySlugs, apply: assignDistinctCategorySlugs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			appliedAt := time.Now().UTC().Unix()
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Slugs were once plain Slugify output: names differing only in punctuation
// shared one, and names without ASCII letters got none. The oldest category keeps
// a contested slug; the rest are reassigned.
func assignDistinctCategorySlugs(db *gorm.DB) error {
	var categories []opportunities.Category
	if err := db.Order("created_at ASC, id ASC").Find(&categories).Error; err != nil {
		return err
	}
	slugs := make(opportunities.SlugSet, len(categories))
	var reassigned []opportunities.Category
	for _, category := range categories {
		if !slugs.Reserve(category.Slug) {
			reassigned = append(reassigned, category)
		}
	}
	for _, category := range reassigned {
		err := db.Model(&opportunities.Category{}).
			Where("id = ?", category.ID).
			Update("slug", slugs.Claim(category.Name)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
