package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// exportRow CSV 导出的一行，列顺序即前端导出约定
type exportRow struct {
	ID              int64  `csv:"id"`
	Service         string `csv:"service"`
	ClientIP        string `csv:"clientIp"`
	StartTimeUTC    string `csv:"startTimeUtc"`
	EndTimeUTC      string `csv:"endTimeUtc"`
	CacheHitBytes   int64  `csv:"cacheHitBytes"`
	CacheMissBytes  int64  `csv:"cacheMissBytes"`
	TotalBytes      int64  `csv:"totalBytes"`
	CacheHitPercent string `csv:"cacheHitPercent"`
	IsActive        bool   `csv:"isActive"`
	GameName        string `csv:"gameName"`
	GameAppID       string `csv:"gameAppId"`
}

// ExportCSV 导出 CSV：分组先摊平成成员记录，命中率保留两位小数。
// 传入完整有序集，导出不受分页影响。
func ExportCSV(items []ViewItem) ([]byte, error) {
	rows := []*exportRow{}

	for _, it := range items {
		if it.Group != nil {
			for _, rec := range it.Group.Downloads {
				rows = append(rows, toExportRow(rec))
			}
			continue
		}
		if it.Download != nil {
			rows = append(rows, toExportRow(it.Download))
		}
	}

	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal csv: %w", err)
	}
	return data, nil
}

// ExportJSON 导出 JSON：保留分组结构，集合字段序列化为数组
func ExportJSON(items []ViewItem) ([]byte, error) {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json: %w", err)
	}
	return data, nil
}

func toExportRow(rec *domain.Download) *exportRow {
	row := &exportRow{
		ID:              rec.ID,
		Service:         rec.Service,
		ClientIP:        rec.ClientIP,
		StartTimeUTC:    rec.StartTimeUTC.UTC().Format(time.RFC3339),
		CacheHitBytes:   rec.CacheHitBytes,
		CacheMissBytes:  rec.CacheMissBytes,
		TotalBytes:      rec.TotalBytes,
		CacheHitPercent: strconv.FormatFloat(rec.CacheHitPercent(), 'f', 2, 64),
		IsActive:        rec.IsActive,
		GameName:        rec.GameName,
	}
	if rec.EndTimeUTC != nil {
		row.EndTimeUTC = rec.EndTimeUTC.UTC().Format(time.RFC3339)
	}
	if rec.GameAppID != nil {
		row.GameAppID = strconv.FormatUint(uint64(*rec.GameAppID), 10)
	}
	return row
}
