package domain

import (
	"time"
)

// Download 一次下载会话（同一客户端对同一内容的连续传输）
// 由日志采集器创建，活跃期间字节计数持续增长，EndTimeUTC 写入后冻结。
// JSON 字段名与前端约定的 camelCase 保持一致。
type Download struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Service        string     `gorm:"type:varchar(50);index:idx_service;not null" json:"service"`
	ClientIP       string     `gorm:"type:varchar(45);index:idx_client_ip;not null" json:"clientIp"`
	StartTimeUTC   time.Time  `gorm:"not null;index:idx_start_time" json:"startTimeUtc"`
	EndTimeUTC     *time.Time `json:"endTimeUtc,omitempty"`
	CacheHitBytes  int64      `gorm:"default:0" json:"cacheHitBytes"`
	CacheMissBytes int64      `gorm:"default:0" json:"cacheMissBytes"`
	TotalBytes     int64      `gorm:"default:0" json:"totalBytes"`
	GameName       string     `gorm:"type:varchar(255)" json:"gameName,omitempty"`
	GameAppID      *uint32    `json:"gameAppId,omitempty"`
	DepotID        *uint32    `gorm:"index:idx_depot_id" json:"depotId,omitempty"`
	DataSource     string     `gorm:"type:varchar(100)" json:"dataSource,omitempty"`
	// 会话平均吞吐（bytes/sec），采集器在会话推进时维护
	AverageBytesPerSecond float64 `json:"averageBytesPerSecond,omitempty"`
	IsActive              bool    `gorm:"index:idx_is_active" json:"isActive"`
}

func (Download) TableName() string {
	return "downloads"
}

// CacheHitPercent 缓存命中率（0-100）。totalBytes 为 0 时按 0 处理，不产生 NaN。
func (d *Download) CacheHitPercent() float64 {
	if d.TotalBytes <= 0 {
		return 0
	}
	return float64(d.CacheHitBytes) / float64(d.TotalBytes) * 100
}

// GroupType 分组类型
type GroupType string

const (
	GroupTypeGame     GroupType = "game"     // 已识别的游戏
	GroupTypeMetadata GroupType = "metadata" // 零字节的元数据请求
	GroupTypeContent  GroupType = "content"  // 其它内容传输
)

// DownloadGroup 按逻辑键聚合的一组下载会话。
// 每次输入变化整组重建，不做增量修补。
type DownloadGroup struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Type           GroupType   `json:"type"`
	Service        string      `json:"service"`
	Downloads      []*Download `json:"downloads"`
	TotalBytes     int64       `json:"totalBytes"`
	CacheHitBytes  int64       `json:"cacheHitBytes"`
	CacheMissBytes int64       `json:"cacheMissBytes"`
	ClientIPs      []string    `json:"clientIps"` // 去重后的客户端集合
	FirstSeen      time.Time   `json:"firstSeen"` // 成员最早的开始时间
	LastSeen       time.Time   `json:"lastSeen"`  // 成员最晚的开始时间
	Count          int         `json:"count"`
}

// CacheHitPercent 组级缓存命中率（0-100）
func (g *DownloadGroup) CacheHitPercent() float64 {
	if g.TotalBytes <= 0 {
		return 0
	}
	return float64(g.CacheHitBytes) / float64(g.TotalBytes) * 100
}

// DepotGroup 表格视图的细粒度聚合：一个 depot 到一个客户端的一次连续传输。
// 没有 depot id 时退化为 (service, clientIp, recordId) 单条。
type DepotGroup struct {
	ID             string    `json:"id"`
	DepotID        *uint32   `json:"depotId,omitempty"`
	GameName       string    `json:"gameName,omitempty"`
	GameAppID      *uint32   `json:"gameAppId,omitempty"`
	Service        string    `json:"service"`
	ClientIP       string    `json:"clientIp"`
	TotalBytes     int64     `json:"totalBytes"`
	CacheHitBytes  int64     `json:"cacheHitBytes"`
	CacheMissBytes int64     `json:"cacheMissBytes"`
	// 按字节加权的平均吞吐，权重为各成员传输的字节数
	AverageBytesPerSecond float64   `json:"averageBytesPerSecond"`
	FirstSeen             time.Time `json:"firstSeen"`
	LastSeen              time.Time `json:"lastSeen"`
	Count                 int       `json:"count"`
	RecordIDs             []int64   `json:"recordIds"` // 参与聚合的原始记录 id
	IsActive              bool      `json:"isActive"`
}

// CacheHitPercent 缓存命中率（0-100）
func (g *DepotGroup) CacheHitPercent() float64 {
	if g.TotalBytes <= 0 {
		return 0
	}
	return float64(g.CacheHitBytes) / float64(g.TotalBytes) * 100
}

// SteamDepotMapping Steam depot 与应用的映射表，由外部映射导入维护
type SteamDepotMapping struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	DepotID uint32 `gorm:"index:idx_depot;not null" json:"depotId"`
	AppID   uint32 `gorm:"not null" json:"appId"`
	AppName string `gorm:"type:varchar(255)" json:"appName"`
	IsOwner bool   `gorm:"default:false" json:"isOwner"`
}

func (SteamDepotMapping) TableName() string {
	return "steam_depot_mappings"
}
