package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

type DownloadRepository interface {
	Save(ctx context.Context, rec *domain.Download) error
	DeactivateActive(ctx context.Context, clientIP, service string) error
	FindByID(ctx context.Context, id int64) (*domain.Download, error)
	// ListAll 按开始时间倒序返回全部记录, 视图引擎在内存中完成过滤/分组
	ListAll(ctx context.Context) ([]*domain.Download, error)
	ListActive(ctx context.Context) ([]*domain.Download, error)
	ListSince(ctx context.Context, since time.Time) ([]*domain.Download, error)
	// SummarizeSince 历史窗口流量汇总, 用数据库聚合避免整表搬运
	SummarizeSince(ctx context.Context, since time.Time) (*domain.SpeedHistory, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type downloadRepo struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewDownloadRepository(db *gorm.DB, logger *logrus.Logger) DownloadRepository {
	return &downloadRepo{
		db:     db,
		logger: logger,
	}
}

func (r *downloadRepo) Save(ctx context.Context, rec *domain.Download) error {
	if rec.ID == 0 {
		return r.db.WithContext(ctx).Create(rec).Error
	}
	return r.db.WithContext(ctx).Save(rec).Error
}

// DeactivateActive 会话重开前, 把同一客户端+服务的残留活跃记录标记为结束
func (r *downloadRepo) DeactivateActive(ctx context.Context, clientIP, service string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Download{}).
		Where("client_ip = ? AND service = ? AND is_active = ?", clientIP, service, true).
		Update("is_active", false)

	if result.Error != nil {
		r.logger.WithError(result.Error).WithFields(logrus.Fields{
			"client_ip": clientIP,
			"service":   service,
		}).Error("Failed to deactivate sessions")
		return result.Error
	}

	if result.RowsAffected > 0 {
		r.logger.WithFields(logrus.Fields{
			"client_ip":   clientIP,
			"service":     service,
			"deactivated": result.RowsAffected,
		}).Debug("Deactivated stale sessions")
	}
	return nil
}

func (r *downloadRepo) FindByID(ctx context.Context, id int64) (*domain.Download, error) {
	var rec domain.Download
	err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *downloadRepo) ListAll(ctx context.Context) ([]*domain.Download, error) {
	var records []*domain.Download
	err := r.db.WithContext(ctx).
		Order("start_time_utc DESC, id DESC").
		Find(&records).Error
	return records, err
}

func (r *downloadRepo) ListActive(ctx context.Context) ([]*domain.Download, error) {
	var records []*domain.Download
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("start_time_utc DESC").
		Find(&records).Error
	return records, err
}

func (r *downloadRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.Download, error) {
	var records []*domain.Download
	err := r.db.WithContext(ctx).
		Where("start_time_utc >= ?", since).
		Order("start_time_utc DESC").
		Find(&records).Error
	return records, err
}

func (r *downloadRepo) SummarizeSince(ctx context.Context, since time.Time) (*domain.SpeedHistory, error) {
	type row struct {
		TotalBytes     int64
		CacheHitBytes  int64
		CacheMissBytes int64
		SessionCount   int64
	}

	var result row
	err := r.db.WithContext(ctx).
		Model(&domain.Download{}).
		Select("COALESCE(SUM(total_bytes),0) as total_bytes, COALESCE(SUM(cache_hit_bytes),0) as cache_hit_bytes, COALESCE(SUM(cache_miss_bytes),0) as cache_miss_bytes, COUNT(*) as session_count").
		Where("start_time_utc >= ?", since).
		Scan(&result).Error
	if err != nil {
		r.logger.WithError(err).Error("Failed to summarize downloads")
		return nil, err
	}

	history := &domain.SpeedHistory{
		TotalBytes:     result.TotalBytes,
		CacheHitBytes:  result.CacheHitBytes,
		CacheMissBytes: result.CacheMissBytes,
		SessionCount:   result.SessionCount,
	}
	if result.TotalBytes > 0 {
		history.HitPercent = float64(result.CacheHitBytes) / float64(result.TotalBytes) * 100
	}
	return history, nil
}

// DeleteBefore 清理开始时间早于 cutoff 的历史记录
func (r *downloadRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("start_time_utc < ? AND is_active = ?", cutoff, false).
		Delete(&domain.Download{})

	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		r.logger.WithFields(logrus.Fields{
			"cutoff":  cutoff,
			"deleted": result.RowsAffected,
		}).Info("Pruned old download records")
	}
	return result.RowsAffected, nil
}
