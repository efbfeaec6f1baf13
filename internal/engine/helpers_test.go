package engine

import (
	"time"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// makeRecord 构造测试记录，hit/miss 默认按 total 的一半拆分
func makeRecord(id int64, service, client, game string, total int64) *domain.Download {
	return &domain.Download{
		ID:             id,
		Service:        service,
		ClientIP:       client,
		GameName:       game,
		StartTimeUTC:   testBase.Add(time.Duration(id) * time.Minute),
		TotalBytes:     total,
		CacheHitBytes:  total / 2,
		CacheMissBytes: total - total/2,
	}
}

func withDepot(rec *domain.Download, depotID uint32) *domain.Download {
	rec.DepotID = &depotID
	return rec
}

func withAppID(rec *domain.Download, appID uint32) *domain.Download {
	rec.GameAppID = &appID
	return rec
}

func withSpeed(rec *domain.Download, bps float64) *domain.Download {
	rec.AverageBytesPerSecond = bps
	return rec
}

func active(rec *domain.Download) *domain.Download {
	rec.IsActive = true
	return rec
}

func defaultFilter() domain.FilterSettings {
	return domain.DefaultSettings().FilterSettings
}
