package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/repository"
)

// SettingsService 展示设置服务接口
type SettingsService interface {
	// 获取当前设置 (缺失或非法的键回落到默认值)
	Get(ctx context.Context) (domain.Settings, error)

	// 整体替换设置
	Update(ctx context.Context, settings domain.Settings) error

	// 更新单个键, 值非法时报错
	UpdateKey(ctx context.Context, key, value string) (domain.Settings, error)
}

type settingsService struct {
	repo     repository.SettingsRepository
	logger   *logrus.Logger
	onChange func(domain.Settings)

	mu     sync.RWMutex
	cached *domain.Settings
}

// NewSettingsService 创建设置服务实例; onChange 在设置变化后回调, 可为 nil
func NewSettingsService(repo repository.SettingsRepository, logger *logrus.Logger, onChange func(domain.Settings)) SettingsService {
	return &settingsService{
		repo:     repo,
		logger:   logger,
		onChange: onChange,
	}
}

func (s *settingsService) Get(ctx context.Context) (domain.Settings, error) {
	s.mu.RLock()
	if s.cached != nil {
		cached := *s.cached
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	values, err := s.repo.GetAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load settings")
		return domain.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := domain.SettingsFromMap(values)

	s.mu.Lock()
	s.cached = &settings
	s.mu.Unlock()
	return settings, nil
}

func (s *settingsService) Update(ctx context.Context, settings domain.Settings) error {
	if !settings.SortOrder.Valid() {
		return fmt.Errorf("invalid sort order: %s", settings.SortOrder)
	}
	if !settings.ViewMode.Valid() {
		return fmt.Errorf("invalid view mode: %s", settings.ViewMode)
	}

	if err := s.repo.SetAll(ctx, settings.ToMap()); err != nil {
		s.logger.WithError(err).Error("Failed to save settings")
		return fmt.Errorf("failed to save settings: %w", err)
	}

	s.mu.Lock()
	s.cached = &settings
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"sort_order": settings.SortOrder,
		"view_mode":  settings.ViewMode,
	}).Info("Settings updated")

	if s.onChange != nil {
		s.onChange(settings)
	}
	return nil
}

func (s *settingsService) UpdateKey(ctx context.Context, key, value string) (domain.Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	values := current.ToMap()
	if _, known := values[key]; !known {
		return domain.Settings{}, fmt.Errorf("unknown setting key: %s", key)
	}
	values[key] = value

	updated := domain.SettingsFromMap(values)
	// 解析回落到默认值说明传入值非法
	if updated.ToMap()[key] != value {
		return domain.Settings{}, fmt.Errorf("invalid value for %s: %s", key, value)
	}

	if err := s.Update(ctx, updated); err != nil {
		return domain.Settings{}, err
	}
	return updated, nil
}
