package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

type SettingsRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	SetAll(ctx context.Context, values map[string]string) error
}

type settingsRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewSettingsRepository(db *gorm.DB, logger *logrus.Logger) SettingsRepository {
	return &settingsRepo{
		db:     db,
		logger: logger,
	}
}

func (r *settingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	var rows []domain.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	setting := domain.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
}

// SetAll 整体保存, 单个事务内逐键 upsert
func (r *settingsRepo) SetAll(ctx context.Context, values map[string]string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for key, value := range values {
			setting := domain.Setting{Key: key, Value: value, UpdatedAt: now}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&setting).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
