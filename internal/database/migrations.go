package database

import (
	"errors"
	"time"

	"github.com/wardview/backend/internal/risk"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationScaleFractionalRiskScores = "2026-07-21_scale_fractional_risk_scores"

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
		{name: migrationScaleFractionalRiskScores, apply: scaleFractionalRiskScores},
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
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before score normalization hold raw model probabilities in
// 0..1; displayed scores are 0..100.
func scaleFractionalRiskScores(db *gorm.DB) error {
	return db.Model(&risk.Entry{}).
		Where("risk_score > 0 AND risk_score <= 1").
		Update("risk_score", gorm.Expr("risk_score * 100")).Error
}
