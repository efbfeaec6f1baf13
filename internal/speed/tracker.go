package speed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/logtail"
)

// SnapshotSink 快照广播回调
type SnapshotSink func(snapshot *domain.SpeedSnapshot)

// Tracker 滑动窗口实时速度统计。
// 作为 logtail.EntrySink 接收解析后的日志条目, 只保留窗口内的条目;
// 快照整体重算, Sequence 单调递增供消费端淘汰乱序旧快照。
type Tracker struct {
	window            time.Duration
	broadcastInterval time.Duration
	pollInterval      time.Duration
	resolver          logtail.DepotResolver
	logger            *logrus.Logger

	mu       sync.Mutex
	entries  []*logtail.LogEntry
	sequence uint64

	// 上次广播时的活跃 (depot, client) 数, 变化时跳过节流立即广播
	lastActiveCount int
}

// NewTracker 创建速度统计器; resolver 可为 nil
func NewTracker(window, broadcastInterval, pollInterval time.Duration, resolver logtail.DepotResolver, logger *logrus.Logger) *Tracker {
	return &Tracker{
		window:            window,
		broadcastInterval: broadcastInterval,
		pollInterval:      pollInterval,
		resolver:          resolver,
		logger:            logger,
		lastActiveCount:   -1,
	}
}

// Record 收录一条日志条目。零字节条目不产生速度, 直接丢弃。
func (t *Tracker) Record(entry *logtail.LogEntry) {
	if entry == nil || entry.BytesServed <= 0 {
		return
	}

	t.mu.Lock()
	t.entries = append(t.entries, entry)
	t.mu.Unlock()
}

// Snapshot 按当前窗口计算一份完整快照
func (t *Tracker) Snapshot(now time.Time) *domain.SpeedSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	windowSeconds := int64(t.window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	type gameKey struct {
		depot  uint32
		client string
	}
	gameGroups := make(map[gameKey][]*logtail.LogEntry)
	clientGroups := make(map[string][]*logtail.LogEntry)

	var totalBytes int64
	depotEntries := 0
	for _, e := range t.entries {
		totalBytes += e.BytesServed
		clientGroups[e.ClientIP] = append(clientGroups[e.ClientIP], e)
		if e.DepotID != nil {
			depotEntries++
			key := gameKey{depot: *e.DepotID, client: e.ClientIP}
			gameGroups[key] = append(gameGroups[key], e)
		}
	}

	gameSpeeds := make([]domain.GameSpeedInfo, 0, len(gameGroups))
	for key, group := range gameGroups {
		var total, hit int64
		for _, e := range group {
			total += e.BytesServed
			if e.CacheStatus == "HIT" {
				hit += e.BytesServed
			}
		}
		hitPercent := 0.0
		if total > 0 {
			hitPercent = float64(hit) / float64(total) * 100
		}

		info := domain.GameSpeedInfo{
			DepotID:         key.depot,
			Service:         group[0].Service,
			ClientIP:        key.client,
			BytesPerSecond:  float64(total) / float64(windowSeconds),
			TotalBytes:      total,
			RequestCount:    len(group),
			CacheHitBytes:   hit,
			CacheMissBytes:  total - hit,
			CacheHitPercent: hitPercent,
		}
		if t.resolver != nil {
			if name, appID, ok := t.resolver.Resolve(key.depot); ok {
				info.GameName = name
				info.GameAppID = appID
			}
		}
		gameSpeeds = append(gameSpeeds, info)
	}

	sort.Slice(gameSpeeds, func(i, j int) bool {
		if gameSpeeds[i].BytesPerSecond != gameSpeeds[j].BytesPerSecond {
			return gameSpeeds[i].BytesPerSecond > gameSpeeds[j].BytesPerSecond
		}
		if gameSpeeds[i].DepotID != gameSpeeds[j].DepotID {
			return gameSpeeds[i].DepotID < gameSpeeds[j].DepotID
		}
		return gameSpeeds[i].ClientIP < gameSpeeds[j].ClientIP
	})

	clientSpeeds := make([]domain.ClientSpeedInfo, 0, len(clientGroups))
	for clientIP, group := range clientGroups {
		var total, hit int64
		depots := make(map[uint32]struct{})
		for _, e := range group {
			total += e.BytesServed
			if e.CacheStatus == "HIT" {
				hit += e.BytesServed
			}
			if e.DepotID != nil {
				depots[*e.DepotID] = struct{}{}
			}
		}

		clientSpeeds = append(clientSpeeds, domain.ClientSpeedInfo{
			ClientIP:       clientIP,
			BytesPerSecond: float64(total) / float64(windowSeconds),
			TotalBytes:     total,
			ActiveGames:    len(depots),
			CacheHitBytes:  hit,
			CacheMissBytes: total - hit,
		})
	}

	sort.Slice(clientSpeeds, func(i, j int) bool {
		if clientSpeeds[i].BytesPerSecond != clientSpeeds[j].BytesPerSecond {
			return clientSpeeds[i].BytesPerSecond > clientSpeeds[j].BytesPerSecond
		}
		return clientSpeeds[i].ClientIP < clientSpeeds[j].ClientIP
	})

	t.sequence++
	return &domain.SpeedSnapshot{
		Sequence:            t.sequence,
		TimestampUTC:        now.UTC(),
		TotalBytesPerSecond: float64(totalBytes) / float64(windowSeconds),
		GameSpeeds:          gameSpeeds,
		ClientSpeeds:        clientSpeeds,
		WindowSeconds:       windowSeconds,
		EntriesInWindow:     len(t.entries),
		HasActiveDownloads:  depotEntries > 0,
	}
}

// pruneLocked 丢弃窗口之外的旧条目
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.window)
	idx := 0
	for idx < len(t.entries) && t.entries[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx > 0 {
		t.entries = append([]*logtail.LogEntry(nil), t.entries[idx:]...)
	}
}

// activeCount 当前窗口内不同 (depot, client) 对的个数
func (t *Tracker) activeCount(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)
	type gameKey struct {
		depot  uint32
		client string
	}
	seen := make(map[gameKey]struct{})
	for _, e := range t.entries {
		if e.DepotID != nil {
			seen[gameKey{depot: *e.DepotID, client: e.ClientIP}] = struct{}{}
		}
	}
	return len(seen)
}

// Run 广播循环: 按 pollInterval 轮询, 距上次广播满 broadcastInterval
// 或活跃下载数发生变化时立即推送一份新快照。
func (t *Tracker) Run(ctx context.Context, sink SnapshotSink) {
	t.logger.WithFields(logrus.Fields{
		"window":             t.window.String(),
		"broadcast_interval": t.broadcastInterval.String(),
	}).Info("Speed tracker started")

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	var lastBroadcast time.Time

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Speed tracker stopped")
			return
		case <-ticker.C:
			now := time.Now().UTC()
			count := t.activeCount(now)
			due := now.Sub(lastBroadcast) >= t.broadcastInterval
			if !due && count == t.lastActiveCount {
				continue
			}

			snapshot := t.Snapshot(now)
			sink(snapshot)
			lastBroadcast = now
			t.lastActiveCount = count
		}
	}
}
