package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/engine"
	"github.com/lancache-dash/lancache-dash-go/internal/repository"
)

// DownloadService 下载视图服务接口
type DownloadService interface {
	// 构建一页视图; mode 为空时用设置里的视图模式
	GetView(ctx context.Context, mode domain.ViewMode, page int) (*engine.ViewResult, error)

	// 当前活跃下载记录 (数据库口径, 作为快照缺位时的兜底)
	ListActive(ctx context.Context) ([]*domain.Download, error)

	// 导出当前过滤排序结果; format 为 csv 或 json
	Export(ctx context.Context, format string) (data []byte, contentType string, err error)

	// 记录集发生变化, 缓存失效
	NotifyChange()

	// 当前记录集版本
	Revision() uint64
}

type downloadService struct {
	repo     repository.DownloadRepository
	settings SettingsService
	engine   *engine.Engine
	logger   *logrus.Logger

	revision atomic.Uint64

	mu             sync.Mutex
	cachedRecords  []*domain.Download
	cachedRevision uint64
	cacheValid     bool
}

// NewDownloadService 创建下载视图服务实例; metrics 可为 nil
func NewDownloadService(repo repository.DownloadRepository, settings SettingsService, logger *logrus.Logger, metrics engine.BuildMetrics) DownloadService {
	s := &downloadService{
		repo:     repo,
		settings: settings,
		engine:   engine.NewEngine(),
		logger:   logger,
	}
	if metrics != nil {
		s.engine.SetMetrics(metrics)
	}
	s.revision.Store(1)
	return s
}

func (s *downloadService) GetView(ctx context.Context, mode domain.ViewMode, page int) (*engine.ViewResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	if mode == "" {
		mode = settings.ViewMode
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid view mode: %s", mode)
	}
	if page < 1 {
		page = 1
	}

	records, revision, err := s.records(ctx)
	if err != nil {
		return nil, err
	}

	return s.engine.BuildView(records, revision, engine.ViewRequest{
		Mode:     mode,
		Page:     page,
		Settings: settings,
	}), nil
}

func (s *downloadService) ListActive(ctx context.Context) ([]*domain.Download, error) {
	records, err := s.repo.ListActive(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list active downloads")
		return nil, fmt.Errorf("failed to list active downloads: %w", err)
	}
	return records, nil
}

func (s *downloadService) Export(ctx context.Context, format string) ([]byte, string, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, "", err
	}

	records, _, err := s.records(ctx)
	if err != nil {
		return nil, "", err
	}

	items := engine.BuildExportItems(records, settings)

	switch format {
	case "csv":
		data, err := engine.ExportCSV(items)
		if err != nil {
			return nil, "", err
		}
		return data, "text/csv", nil
	case "json":
		data, err := engine.ExportJSON(items)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func (s *downloadService) NotifyChange() {
	s.revision.Add(1)

	s.mu.Lock()
	s.cacheValid = false
	s.mu.Unlock()
}

func (s *downloadService) Revision() uint64 {
	return s.revision.Load()
}

// records 返回当前记录集及其版本。版本未变化时直接复用上次的查询结果,
// 避免每次视图请求都整表扫描。
func (s *downloadService) records(ctx context.Context) ([]*domain.Download, uint64, error) {
	revision := s.revision.Load()

	s.mu.Lock()
	if s.cacheValid && s.cachedRevision == revision {
		records := s.cachedRecords
		s.mu.Unlock()
		return records, revision, nil
	}
	s.mu.Unlock()

	records, err := s.repo.ListAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load download records")
		return nil, 0, fmt.Errorf("failed to load download records: %w", err)
	}

	s.mu.Lock()
	// 加载期间版本可能又变了, 只缓存仍然新鲜的结果
	if s.revision.Load() == revision {
		s.cachedRecords = records
		s.cachedRevision = revision
		s.cacheValid = true
	}
	s.mu.Unlock()

	return records, revision, nil
}
