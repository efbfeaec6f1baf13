package logtail

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// SessionStore 会话落库接口; Save 对 ID 为零的记录做插入, 否则更新
type SessionStore interface {
	Save(ctx context.Context, rec *domain.Download) error
	DeactivateActive(ctx context.Context, clientIP, service string) error
}

// DepotResolver depot 编号到游戏名的映射查询
type DepotResolver interface {
	Resolve(depotID uint32) (name string, appID *uint32, ok bool)
}

// EntrySink 解析后日志条目的旁路消费者 (实时速度统计)
type EntrySink interface {
	Record(entry *LogEntry)
}

// IngestMetrics 采集指标上报
type IngestMetrics interface {
	RecordLineParsed(service string, hitBytes, missBytes uint64)
	RecordParseError()
	RecordSessionOpened(service string)
	RecordSessionFinalized(service string)
}

// session 一次在途下载会话
type session struct {
	record       *domain.Download
	lastActivity time.Time
	depotVotes   map[uint32]int
}

// Collector 把日志行组装成下载会话。
// 会话键为 客户端IP_服务名; 同键两条请求间隔超过 gap 即切分为新会话,
// 旧会话收尾落库。depot 取会话内出现次数最多的那个。
type Collector struct {
	parser     *Parser
	gap        time.Duration
	store      SessionStore
	resolver   DepotResolver
	sink       EntrySink
	metrics    IngestMetrics
	logger     *logrus.Logger
	onChange   func()
	dataSource string

	mu       sync.Mutex
	sessions map[string]*session
}

// NewCollector 创建会话组装器; resolver / sink / metrics / onChange 均可为 nil
func NewCollector(gap time.Duration, store SessionStore, resolver DepotResolver, sink EntrySink, metrics IngestMetrics, dataSource string, logger *logrus.Logger, onChange func()) *Collector {
	return &Collector{
		parser:     NewParser(),
		gap:        gap,
		store:      store,
		resolver:   resolver,
		sink:       sink,
		metrics:    metrics,
		logger:     logger,
		onChange:   onChange,
		dataSource: dataSource,
		sessions:   make(map[string]*session),
	}
}

// HandleLine 消费一行日志, 供 Tailer 回调
func (c *Collector) HandleLine(ctx context.Context, line string) error {
	entry := c.parser.ParseLine(line)
	if entry == nil {
		// 空行不算解析失败
		if c.metrics != nil && strings.TrimSpace(line) != "" {
			c.metrics.RecordParseError()
		}
		return nil
	}
	if ShouldSkipURL(entry.URL) {
		return nil
	}

	if c.metrics != nil {
		var hit, miss uint64
		switch entry.CacheStatus {
		case "HIT":
			hit = uint64(entry.BytesServed)
		case "MISS":
			miss = uint64(entry.BytesServed)
		}
		c.metrics.RecordLineParsed(entry.Service, hit, miss)
	}

	if c.sink != nil {
		c.sink.Record(entry)
	}

	return c.ingest(ctx, entry)
}

func (c *Collector) ingest(ctx context.Context, entry *LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := entry.ClientIP + "_" + entry.Service

	sess, ok := c.sessions[key]
	if ok && entry.Timestamp.Sub(sess.lastActivity) > c.gap {
		// 间隔超时, 旧会话收尾, 同键重开
		if err := c.finalizeLocked(ctx, key, sess); err != nil {
			c.logger.WithError(err).WithField("session", key).Error("Failed to finalize session")
		}
		sess = nil
		ok = false
	}

	if !ok {
		if err := c.store.DeactivateActive(ctx, entry.ClientIP, entry.Service); err != nil {
			c.logger.WithError(err).WithField("session", key).Warn("Failed to deactivate stale sessions")
		}
		sess = &session{
			record: &domain.Download{
				Service:      entry.Service,
				ClientIP:     entry.ClientIP,
				StartTimeUTC: entry.Timestamp,
				IsActive:     true,
				DataSource:   c.dataSource,
			},
			depotVotes: make(map[uint32]int),
		}
		c.sessions[key] = sess
		if c.metrics != nil {
			c.metrics.RecordSessionOpened(entry.Service)
		}
	}

	rec := sess.record
	switch entry.CacheStatus {
	case "HIT":
		rec.CacheHitBytes += entry.BytesServed
	case "MISS":
		rec.CacheMissBytes += entry.BytesServed
	}
	rec.TotalBytes = rec.CacheHitBytes + rec.CacheMissBytes

	end := entry.Timestamp
	rec.EndTimeUTC = &end
	sess.lastActivity = entry.Timestamp

	if entry.DepotID != nil {
		sess.depotVotes[*entry.DepotID]++
		c.applyPrimaryDepotLocked(sess)
	}

	if elapsed := entry.Timestamp.Sub(rec.StartTimeUTC).Seconds(); elapsed >= 1 {
		rec.AverageBytesPerSecond = float64(rec.TotalBytes) / elapsed
	} else {
		rec.AverageBytesPerSecond = float64(rec.TotalBytes)
	}

	if err := c.store.Save(ctx, rec); err != nil {
		return err
	}
	if c.onChange != nil {
		c.onChange()
	}
	return nil
}

// applyPrimaryDepotLocked 取票数最多的 depot 作为会话 depot, 并尝试解析游戏名
func (c *Collector) applyPrimaryDepotLocked(sess *session) {
	var primary uint32
	best := 0
	for depot, votes := range sess.depotVotes {
		if votes > best || (votes == best && depot < primary) {
			primary = depot
			best = votes
		}
	}
	if best == 0 {
		return
	}

	sess.record.DepotID = &primary
	if c.resolver == nil {
		return
	}
	if name, appID, ok := c.resolver.Resolve(primary); ok {
		sess.record.GameName = name
		sess.record.GameAppID = appID
	}
}

// finalizeLocked 会话收尾: 标记结束并落库
func (c *Collector) finalizeLocked(ctx context.Context, key string, sess *session) error {
	delete(c.sessions, key)

	rec := sess.record
	rec.IsActive = false
	if rec.EndTimeUTC == nil {
		end := sess.lastActivity
		rec.EndTimeUTC = &end
	}

	c.logger.WithFields(logrus.Fields{
		"session":     key,
		"total_bytes": rec.TotalBytes,
	}).Debug("Session finalized")

	if c.metrics != nil {
		c.metrics.RecordSessionFinalized(rec.Service)
	}

	if err := c.store.Save(ctx, rec); err != nil {
		return err
	}
	if c.onChange != nil {
		c.onChange()
	}
	return nil
}

// Flush 关闭所有空闲超过 gap 的会话
func (c *Collector) Flush(ctx context.Context, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sess := range c.sessions {
		if now.Sub(sess.lastActivity) > c.gap {
			if err := c.finalizeLocked(ctx, key, sess); err != nil {
				c.logger.WithError(err).WithField("session", key).Error("Failed to finalize idle session")
			}
		}
	}
}

// Run 周期性触发 Flush, 直到 ctx 取消
func (c *Collector) Run(ctx context.Context) {
	interval := c.gap / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Flush(ctx, now.UTC())
		}
	}
}

// ActiveSessionCount 当前在途会话数
func (c *Collector) ActiveSessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}
