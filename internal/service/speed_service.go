package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/engine"
	"github.com/lancache-dash/lancache-dash-go/internal/repository"
)

// SpeedService 实时速度快照服务接口
type SpeedService interface {
	// 收录一份新快照; Sequence 不高于当前快照的迟到者被丢弃
	Publish(snapshot *domain.SpeedSnapshot) bool

	// 当前快照, 尚未收到任何快照时为 nil
	Current() *domain.SpeedSnapshot

	// "正在下载" 视图: 快照优先, 没有快照时退回数据库活跃记录
	ActiveView(ctx context.Context) (domain.ActiveView, error)

	// 历史窗口流量汇总
	History(ctx context.Context, windowMinutes int) (*domain.SpeedHistory, error)
}

type speedService struct {
	downloads DownloadService
	repo      repository.DownloadRepository
	logger    *logrus.Logger

	mu      sync.RWMutex
	current *domain.SpeedSnapshot
}

// NewSpeedService 创建速度服务实例
func NewSpeedService(downloads DownloadService, repo repository.DownloadRepository, logger *logrus.Logger) SpeedService {
	return &speedService{
		downloads: downloads,
		repo:      repo,
		logger:    logger,
	}
}

func (s *speedService) Publish(snapshot *domain.SpeedSnapshot) bool {
	if snapshot == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 整体替换; 乱序到达的旧快照直接丢弃, 保留最后一份有效数据
	if s.current != nil && snapshot.Sequence <= s.current.Sequence {
		s.logger.WithFields(logrus.Fields{
			"sequence":         snapshot.Sequence,
			"current_sequence": s.current.Sequence,
		}).Debug("Discarded stale speed snapshot")
		return false
	}

	s.current = snapshot
	return true
}

func (s *speedService) Current() *domain.SpeedSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *speedService) ActiveView(ctx context.Context) (domain.ActiveView, error) {
	snapshot := s.Current()
	if snapshot != nil {
		return engine.BuildActiveView(snapshot, nil), nil
	}

	fallback, err := s.downloads.ListActive(ctx)
	if err != nil {
		return domain.ActiveView{}, err
	}
	return engine.BuildActiveView(nil, fallback), nil
}

func (s *speedService) History(ctx context.Context, windowMinutes int) (*domain.SpeedHistory, error) {
	if windowMinutes <= 0 {
		windowMinutes = 24 * 60
	}

	since := time.Now().UTC().Add(-time.Duration(windowMinutes) * time.Minute)
	history, err := s.repo.SummarizeSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize history: %w", err)
	}

	history.WindowMinutes = windowMinutes
	return history, nil
}
