package domain

import "time"

// GameSpeedInfo 快照窗口内某个 depot 到某个客户端的实时速度
type GameSpeedInfo struct {
	DepotID         uint32  `json:"depotId"`
	GameName        string  `json:"gameName,omitempty"`
	GameAppID       *uint32 `json:"gameAppId,omitempty"`
	Service         string  `json:"service"`
	ClientIP        string  `json:"clientIp"`
	BytesPerSecond  float64 `json:"bytesPerSecond"`
	TotalBytes      int64   `json:"totalBytes"`
	RequestCount    int     `json:"requestCount"`
	CacheHitBytes   int64   `json:"cacheHitBytes"`
	CacheMissBytes  int64   `json:"cacheMissBytes"`
	CacheHitPercent float64 `json:"cacheHitPercent"`
}

// ClientSpeedInfo 快照窗口内某个客户端的实时速度
type ClientSpeedInfo struct {
	ClientIP       string  `json:"clientIp"`
	BytesPerSecond float64 `json:"bytesPerSecond"`
	TotalBytes     int64   `json:"totalBytes"`
	ActiveGames    int     `json:"activeGames"`
	CacheHitBytes  int64   `json:"cacheHitBytes"`
	CacheMissBytes int64   `json:"cacheMissBytes"`
}

// SpeedSnapshot 当前活跃传输的全量快照。
// 每次刷新整体替换，从不按字段合并；Sequence 单调递增，用于丢弃迟到的旧快照。
type SpeedSnapshot struct {
	Sequence            uint64            `json:"sequence"`
	TimestampUTC        time.Time         `json:"timestampUtc"`
	TotalBytesPerSecond float64           `json:"totalBytesPerSecond"`
	GameSpeeds          []GameSpeedInfo   `json:"gameSpeeds"`
	ClientSpeeds        []ClientSpeedInfo `json:"clientSpeeds"`
	WindowSeconds       int64             `json:"windowSeconds"`
	EntriesInWindow     int               `json:"entriesInWindow"`
	HasActiveDownloads  bool              `json:"hasActiveDownloads"`
}

// ActiveView "正在下载" 视图：快照到达后以快照为准
type ActiveView struct {
	HasActive bool              `json:"hasActive"`
	Games     []GameSpeedInfo   `json:"games"`
	Clients   []ClientSpeedInfo `json:"clients"`
	// 快照尚未到达时为 true，表示 HasActive 来自静态记录的兜底推断
	FromFallback bool `json:"fromFallback,omitempty"`
}

// SpeedHistory 历史窗口内的流量汇总（"今日下载量" 等）
type SpeedHistory struct {
	WindowMinutes  int     `json:"windowMinutes"`
	TotalBytes     int64   `json:"totalBytes"`
	CacheHitBytes  int64   `json:"cacheHitBytes"`
	CacheMissBytes int64   `json:"cacheMissBytes"`
	SessionCount   int64   `json:"sessionCount"`
	HitPercent     float64 `json:"hitPercent"`
}
