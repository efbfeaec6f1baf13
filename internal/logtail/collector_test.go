package logtail

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// fakeStore 内存版 SessionStore, 记录每次落库
type fakeStore struct {
	nextID      int64
	records     map[int64]domain.Download
	deactivated int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64]domain.Download)}
}

func (s *fakeStore) Save(_ context.Context, rec *domain.Download) error {
	if rec.ID == 0 {
		s.nextID++
		rec.ID = s.nextID
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *fakeStore) DeactivateActive(_ context.Context, _, _ string) error {
	s.deactivated++
	return nil
}

type fakeResolver struct{}

func (fakeResolver) Resolve(depotID uint32) (string, *uint32, bool) {
	if depotID == 2767031 {
		app := uint32(2767030)
		return "Example Game", &app, true
	}
	return "", nil, false
}

func steamLine(ts, client, status string, bytes int) string {
	return "[steam] " + client + ` / - - - [` + ts + `] "GET /depot/2767031/chunk/aa HTTP/1.1" 200 ` +
		strconv.Itoa(bytes) + ` "-" "Valve/Steam HTTP Client 1.0" "` + status + `" "upstream" "-"`
}

func newTestCollector(store *fakeStore, onChange func()) *Collector {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewCollector(5*time.Minute, store, fakeResolver{}, nil, nil, "live", logger, onChange)
}

// fakeIngestMetrics 记录指标回调次数
type fakeIngestMetrics struct {
	linesParsed int
	hitBytes    uint64
	missBytes   uint64
	parseErrors int
	opened      int
	finalized   int
}

func (m *fakeIngestMetrics) RecordLineParsed(_ string, hit, miss uint64) {
	m.linesParsed++
	m.hitBytes += hit
	m.missBytes += miss
}
func (m *fakeIngestMetrics) RecordParseError()           { m.parseErrors++ }
func (m *fakeIngestMetrics) RecordSessionOpened(string)  { m.opened++ }
func (m *fakeIngestMetrics) RecordSessionFinalized(string) { m.finalized++ }

func TestCollector_AccumulatesSession(t *testing.T) {
	store := newFakeStore()
	changes := 0
	c := newTestCollector(store, func() { changes++ })
	ctx := context.Background()

	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:00 +0000", "10.0.0.1", "MISS", 1000)))
	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:30 +0000", "10.0.0.1", "HIT", 3000)))

	assert.Equal(t, 1, c.ActiveSessionCount())
	require.Len(t, store.records, 1)

	rec := store.records[1]
	assert.True(t, rec.IsActive)
	assert.Equal(t, int64(3000), rec.CacheHitBytes)
	assert.Equal(t, int64(1000), rec.CacheMissBytes)
	assert.Equal(t, int64(4000), rec.TotalBytes)
	assert.Equal(t, "Example Game", rec.GameName)
	require.NotNil(t, rec.DepotID)
	assert.Equal(t, uint32(2767031), *rec.DepotID)
	require.NotNil(t, rec.EndTimeUTC)
	assert.Equal(t, 2, changes)
}

func TestCollector_GapStartsNewSession(t *testing.T) {
	store := newFakeStore()
	c := newTestCollector(store, nil)
	ctx := context.Background()

	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:00 +0000", "10.0.0.1", "MISS", 1000)))
	// 超过 5 分钟间隔, 切分为新会话
	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:10:00 +0000", "10.0.0.1", "MISS", 2000)))

	require.Len(t, store.records, 2)
	first := store.records[1]
	second := store.records[2]
	assert.False(t, first.IsActive)
	assert.True(t, second.IsActive)
	assert.Equal(t, int64(1000), first.TotalBytes)
	assert.Equal(t, int64(2000), second.TotalBytes)
}

func TestCollector_SessionsKeyedByClientAndService(t *testing.T) {
	store := newFakeStore()
	c := newTestCollector(store, nil)
	ctx := context.Background()

	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:00 +0000", "10.0.0.1", "MISS", 1000)))
	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:00 +0000", "10.0.0.2", "MISS", 1000)))

	assert.Equal(t, 2, c.ActiveSessionCount())
	assert.Len(t, store.records, 2)
}

func TestCollector_SkipsHeartbeat(t *testing.T) {
	store := newFakeStore()
	c := newTestCollector(store, nil)

	line := `[127.0.0.1] 127.0.0.1 / - - - [10/Jan/2024:16:28:34 -0600] "GET /lancache-heartbeat HTTP/1.1" 204 0 "-" "Wget/1.19.4 (linux-gnu)" "-" "127.0.0.1" "-"`
	require.NoError(t, c.HandleLine(context.Background(), line))
	assert.Equal(t, 0, c.ActiveSessionCount())
	assert.Empty(t, store.records)
}

func TestCollector_FlushFinalizesIdle(t *testing.T) {
	store := newFakeStore()
	c := newTestCollector(store, nil)
	ctx := context.Background()

	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:00 +0000", "10.0.0.1", "MISS", 1000)))

	// 空闲不足 gap, 不收尾
	c.Flush(ctx, time.Date(2024, 1, 10, 12, 1, 0, 0, time.UTC))
	assert.Equal(t, 1, c.ActiveSessionCount())

	c.Flush(ctx, time.Date(2024, 1, 10, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, 0, c.ActiveSessionCount())
	assert.False(t, store.records[1].IsActive)
}

func TestCollector_UnparsableLineIgnored(t *testing.T) {
	store := newFakeStore()
	c := newTestCollector(store, nil)

	require.NoError(t, c.HandleLine(context.Background(), "garbage line"))
	assert.Empty(t, store.records)
}

// TestCollector_ReportsIngestMetrics 行解析/会话开闭都要上报指标
func TestCollector_ReportsIngestMetrics(t *testing.T) {
	store := newFakeStore()
	metrics := &fakeIngestMetrics{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := NewCollector(5*time.Minute, store, fakeResolver{}, nil, metrics, "live", logger, nil)
	ctx := context.Background()

	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:00 +0000", "10.0.0.1", "MISS", 1000)))
	require.NoError(t, c.HandleLine(ctx, steamLine("10/Jan/2024:12:00:30 +0000", "10.0.0.1", "HIT", 3000)))
	require.NoError(t, c.HandleLine(ctx, "garbage line"))
	require.NoError(t, c.HandleLine(ctx, "   "))

	assert.Equal(t, 2, metrics.linesParsed)
	assert.Equal(t, uint64(3000), metrics.hitBytes)
	assert.Equal(t, uint64(1000), metrics.missBytes)
	assert.Equal(t, 1, metrics.parseErrors) // 纯空白行不算解析失败
	assert.Equal(t, 1, metrics.opened)
	assert.Equal(t, 0, metrics.finalized)

	c.Flush(ctx, time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, metrics.finalized)
}
