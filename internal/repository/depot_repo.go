package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

type DepotMappingRepository interface {
	// Resolve depot 到游戏名/appId 的查询, 实现 logtail.DepotResolver
	Resolve(depotID uint32) (name string, appID *uint32, ok bool)
	Upsert(ctx context.Context, mapping *domain.SteamDepotMapping) error
	Count(ctx context.Context) (int64, error)
}

type depotRepo struct {
	db     *gorm.DB
	logger *logrus.Logger

	mu sync.RWMutex
	// 只缓存命中的映射, 未命中的每次重查, 以便导入映射后立刻生效
	cache map[uint32]*domain.SteamDepotMapping
}

func NewDepotMappingRepository(db *gorm.DB, logger *logrus.Logger) DepotMappingRepository {
	return &depotRepo{
		db:     db,
		logger: logger,
		cache:  make(map[uint32]*domain.SteamDepotMapping),
	}
}

func (r *depotRepo) Resolve(depotID uint32) (string, *uint32, bool) {
	r.mu.RLock()
	cached, ok := r.cache[depotID]
	r.mu.RUnlock()
	if ok {
		appID := cached.AppID
		return cached.AppName, &appID, true
	}

	var mapping domain.SteamDepotMapping
	err := r.db.
		Where("depot_id = ? AND is_owner = ?", depotID, true).
		First(&mapping).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.WithError(err).WithField("depot_id", depotID).Warn("Depot mapping lookup failed")
		}
		return "", nil, false
	}
	if mapping.AppName == "" {
		return "", nil, false
	}

	r.mu.Lock()
	r.cache[depotID] = &mapping
	r.mu.Unlock()

	appID := mapping.AppID
	return mapping.AppName, &appID, true
}

func (r *depotRepo) Upsert(ctx context.Context, mapping *domain.SteamDepotMapping) error {
	var existing domain.SteamDepotMapping
	err := r.db.WithContext(ctx).
		Where("depot_id = ? AND app_id = ?", mapping.DepotID, mapping.AppID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(mapping).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else {
		mapping.ID = existing.ID
		if err := r.db.WithContext(ctx).Save(mapping).Error; err != nil {
			return err
		}
	}

	// 映射更新后缓存失效
	r.mu.Lock()
	delete(r.cache, mapping.DepotID)
	r.mu.Unlock()
	return nil
}

func (r *depotRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.SteamDepotMapping{}).Count(&count).Error
	return count, err
}
