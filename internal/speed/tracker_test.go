package speed

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/logtail"
)

func testTracker() *Tracker {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewTracker(2*time.Second, 500*time.Millisecond, 100*time.Millisecond, nil, logger)
}

func entryAt(ts time.Time, client string, depot uint32, bytes int64, status string) *logtail.LogEntry {
	e := &logtail.LogEntry{
		Timestamp:   ts,
		ClientIP:    client,
		Service:     "steam",
		StatusCode:  200,
		BytesServed: bytes,
		CacheStatus: status,
	}
	if depot != 0 {
		e.DepotID = &depot
	}
	return e
}

func TestTracker_SnapshotAggregates(t *testing.T) {
	tr := testTracker()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tr.Record(entryAt(now, "10.0.0.1", 570, 1000, "HIT"))
	tr.Record(entryAt(now, "10.0.0.1", 570, 3000, "MISS"))
	tr.Record(entryAt(now, "10.0.0.2", 730, 8000, "HIT"))

	snap := tr.Snapshot(now)
	require.NotNil(t, snap)

	assert.Equal(t, uint64(1), snap.Sequence)
	assert.True(t, snap.HasActiveDownloads)
	assert.Equal(t, 3, snap.EntriesInWindow)
	assert.InDelta(t, 6000.0, snap.TotalBytesPerSecond, 0.01) // 12000 字节 / 2 秒窗口

	require.Len(t, snap.GameSpeeds, 2)
	// 速度降序
	assert.Equal(t, uint32(730), snap.GameSpeeds[0].DepotID)
	assert.InDelta(t, 4000.0, snap.GameSpeeds[0].BytesPerSecond, 0.01)
	assert.Equal(t, uint32(570), snap.GameSpeeds[1].DepotID)
	assert.Equal(t, int64(1000), snap.GameSpeeds[1].CacheHitBytes)
	assert.Equal(t, int64(3000), snap.GameSpeeds[1].CacheMissBytes)
	assert.InDelta(t, 25.0, snap.GameSpeeds[1].CacheHitPercent, 0.01)

	require.Len(t, snap.ClientSpeeds, 2)
	assert.Equal(t, "10.0.0.2", snap.ClientSpeeds[0].ClientIP)
	assert.Equal(t, 1, snap.ClientSpeeds[0].ActiveGames)
}

func TestTracker_WindowPrune(t *testing.T) {
	tr := testTracker()
	now := time.Date(2026, 3, 10, 12, 0, 10, 0, time.UTC)

	tr.Record(entryAt(now.Add(-5*time.Second), "10.0.0.1", 570, 1000, "HIT"))
	tr.Record(entryAt(now.Add(-500*time.Millisecond), "10.0.0.1", 570, 2000, "HIT"))

	snap := tr.Snapshot(now)
	assert.Equal(t, 1, snap.EntriesInWindow)
	assert.InDelta(t, 1000.0, snap.TotalBytesPerSecond, 0.01) // 只剩 2000 字节那条
}

func TestTracker_SequenceMonotonic(t *testing.T) {
	tr := testTracker()
	now := time.Now().UTC()

	first := tr.Snapshot(now)
	second := tr.Snapshot(now.Add(time.Second))
	assert.Greater(t, second.Sequence, first.Sequence)
}

func TestTracker_NoDepotNoActive(t *testing.T) {
	tr := testTracker()
	now := time.Now().UTC()

	// 无 depot 的流量计入总速度, 但不构成活跃下载
	tr.Record(entryAt(now, "10.0.0.1", 0, 4000, "MISS"))

	snap := tr.Snapshot(now)
	assert.False(t, snap.HasActiveDownloads)
	assert.Empty(t, snap.GameSpeeds)
	require.Len(t, snap.ClientSpeeds, 1)
	assert.Equal(t, 0, snap.ClientSpeeds[0].ActiveGames)
	assert.InDelta(t, 2000.0, snap.TotalBytesPerSecond, 0.01)
}

func TestTracker_ZeroByteEntriesDropped(t *testing.T) {
	tr := testTracker()
	now := time.Now().UTC()

	tr.Record(entryAt(now, "10.0.0.1", 570, 0, "HIT"))
	tr.Record(nil)

	snap := tr.Snapshot(now)
	assert.Equal(t, 0, snap.EntriesInWindow)
	assert.False(t, snap.HasActiveDownloads)
}

// TestTracker_Run_ActiveCountChangeBypassesThrottle 活跃下载数变化时不等广播间隔立即推送
func TestTracker_Run_ActiveCountChangeBypassesThrottle(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	// 广播间隔拉到足够长, 只有活跃数变化才可能触发推送
	tr := NewTracker(time.Minute, time.Hour, 5*time.Millisecond, nil, logger)

	snapshots := make(chan *domain.SpeedSnapshot, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx, func(snap *domain.SpeedSnapshot) {
		snapshots <- snap
	})

	// 启动后的首个 tick: 活跃数从初始值变为 0, 推送一次空快照
	var first *domain.SpeedSnapshot
	select {
	case first = <-snapshots:
	case <-time.After(3 * time.Second):
		t.Fatal("no initial snapshot broadcast")
	}
	assert.False(t, first.HasActiveDownloads)

	// 新 (depot, client) 出现, 距上次广播远未满间隔, 仍应立即推送
	tr.Record(entryAt(time.Now().UTC(), "10.0.0.1", 570, 4000, "HIT"))

	select {
	case snap := <-snapshots:
		assert.True(t, snap.HasActiveDownloads)
		assert.Greater(t, snap.Sequence, first.Sequence)
	case <-time.After(3 * time.Second):
		t.Fatal("active count change did not trigger a broadcast")
	}
}

func TestTracker_EmptySnapshotStillBroadcastable(t *testing.T) {
	tr := testTracker()

	snap := tr.Snapshot(time.Now().UTC())
	require.NotNil(t, snap)
	assert.NotNil(t, snap.GameSpeeds)
	assert.NotNil(t, snap.ClientSpeeds)
	assert.Equal(t, int64(2), snap.WindowSeconds)
}
