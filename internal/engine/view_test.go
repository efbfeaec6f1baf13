package engine

import (
	"testing"
	"time"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewRecords() []*domain.Download {
	return []*domain.Download{
		makeRecord(1, "steam", "10.0.0.1", "Portal", 4_000_000),
		makeRecord(2, "steam", "10.0.0.1", "Portal", 6_000_000),
		makeRecord(3, "epic", "10.0.0.2", "Fortnite", 2_000_000),
		makeRecord(4, "wsus", "10.0.0.3", "", 9_000_000),
	}
}

func TestEngine_BuildView_Compact(t *testing.T) {
	eng := NewEngine()
	req := ViewRequest{Mode: domain.ViewModeCompact, Page: 1, Settings: domain.DefaultSettings()}

	result := eng.BuildView(viewRecords(), 1, req)
	require.NotNil(t, result)
	assert.Equal(t, domain.ViewModeCompact, result.Mode)
	assert.Equal(t, 3, result.TotalItems) // Portal 组、Fortnite、wsus 服务组
	assert.Equal(t, 1, result.TotalPages)
	assert.Len(t, result.Items, 3)
	assert.Empty(t, result.DepotRows)
}

// TestEngine_BuildView_Memoized 相同依赖元组必须命中缓存
func TestEngine_BuildView_Memoized(t *testing.T) {
	eng := NewEngine()
	records := viewRecords()
	req := ViewRequest{Mode: domain.ViewModeCards, Page: 1, Settings: domain.DefaultSettings()}

	first := eng.BuildView(records, 7, req)
	second := eng.BuildView(records, 7, req)
	assert.Same(t, first, second)
}

// fakeBuildMetrics 记录构建上报
type fakeBuildMetrics struct {
	hits   int
	misses int
}

func (m *fakeBuildMetrics) RecordViewBuild(_ time.Duration, cached bool) {
	if cached {
		m.hits++
	} else {
		m.misses++
	}
}

// TestEngine_BuildView_ReportsCacheMetrics 首次构建记 miss, 复用缓存记 hit
func TestEngine_BuildView_ReportsCacheMetrics(t *testing.T) {
	eng := NewEngine()
	metrics := &fakeBuildMetrics{}
	eng.SetMetrics(metrics)

	records := viewRecords()
	req := ViewRequest{Mode: domain.ViewModeCompact, Page: 1, Settings: domain.DefaultSettings()}

	eng.BuildView(records, 3, req)
	eng.BuildView(records, 3, req)
	eng.BuildView(records, 3, req)

	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 2, metrics.hits)
}

// TestEngine_BuildView_RevisionInvalidates 记录集版本变化即整体重算
func TestEngine_BuildView_RevisionInvalidates(t *testing.T) {
	eng := NewEngine()
	records := viewRecords()
	req := ViewRequest{Mode: domain.ViewModeCards, Page: 1, Settings: domain.DefaultSettings()}

	first := eng.BuildView(records, 1, req)

	records = append(records, makeRecord(5, "steam", "10.0.0.4", "Dota 2", 3_000_000))
	second := eng.BuildView(records, 2, req)

	assert.NotSame(t, first, second)
	assert.Equal(t, 4, second.TotalItems)
}

// TestEngine_BuildView_SettingsChangeMissesCache 设置变化是不同的键，不互相污染
func TestEngine_BuildView_SettingsChangeMissesCache(t *testing.T) {
	eng := NewEngine()
	records := viewRecords()

	base := domain.DefaultSettings()
	byBytes := base
	byBytes.SortOrder = domain.SortLargest

	first := eng.BuildView(records, 1, ViewRequest{Mode: domain.ViewModeCompact, Page: 1, Settings: base})
	second := eng.BuildView(records, 1, ViewRequest{Mode: domain.ViewModeCompact, Page: 1, Settings: byBytes})
	assert.NotSame(t, first, second)

	// 换回原设置仍命中第一次的缓存
	third := eng.BuildView(records, 1, ViewRequest{Mode: domain.ViewModeCompact, Page: 1, Settings: base})
	assert.Same(t, first, third)
}

// TestEngine_BuildView_Retro 表格视图按 depot 独立聚合，分页独立计数
func TestEngine_BuildView_Retro(t *testing.T) {
	records := []*domain.Download{
		withDepot(makeRecord(1, "steam", "10.0.0.1", "Portal", 1_000), 401),
		withDepot(makeRecord(2, "steam", "10.0.0.1", "Portal", 2_000), 401),
		withDepot(makeRecord(3, "steam", "10.0.0.2", "Portal", 3_000), 401),
	}

	settings := domain.DefaultSettings()
	settings.RetroItemsPerPage = 1
	eng := NewEngine()

	result := eng.BuildView(records, 1, ViewRequest{Mode: domain.ViewModeRetro, Page: 1, Settings: settings})
	require.NotNil(t, result)
	// 同一 depot 两个客户端 = 两行，和 compact 的一组三条完全是两套账
	assert.Equal(t, 2, result.TotalItems)
	assert.Equal(t, 2, result.TotalPages)
	assert.Len(t, result.DepotRows, 1)
	assert.Empty(t, result.Items)
}

// TestEngine_BuildView_RetroSortOrders 表格行排序沿用同一套排序语义
func TestEngine_BuildView_RetroSortOrders(t *testing.T) {
	records := []*domain.Download{
		withDepot(makeRecord(1, "steam", "10.0.0.1", "Alpha", 9_000), 1),
		withDepot(makeRecord(2, "steam", "10.0.0.1", "Beta", 1_000), 2),
		withDepot(makeRecord(3, "steam", "10.0.0.1", "Gamma", 5_000), 3),
	}

	settings := domain.DefaultSettings()
	settings.SortOrder = domain.SortSmallest
	eng := NewEngine()

	result := eng.BuildView(records, 1, ViewRequest{Mode: domain.ViewModeRetro, Page: 1, Settings: settings})
	require.Len(t, result.DepotRows, 3)
	assert.Equal(t, "Beta", result.DepotRows[0].GameName)
	assert.Equal(t, "Gamma", result.DepotRows[1].GameName)
	assert.Equal(t, "Alpha", result.DepotRows[2].GameName)
}

// TestEngine_BuildView_RetroAlphabeticalFallsBackToService 无游戏名的行按服务名参与排序
func TestEngine_BuildView_RetroAlphabeticalFallsBackToService(t *testing.T) {
	records := []*domain.Download{
		withDepot(makeRecord(1, "steam", "10.0.0.1", "Portal", 1_000), 401),
		makeRecord(2, "wsus", "10.0.0.2", "", 2_000),
		makeRecord(3, "epic", "10.0.0.3", "", 3_000),
	}

	settings := domain.DefaultSettings()
	settings.SortOrder = domain.SortAlphabetical
	eng := NewEngine()

	result := eng.BuildView(records, 1, ViewRequest{Mode: domain.ViewModeRetro, Page: 1, Settings: settings})
	require.Len(t, result.DepotRows, 3)
	assert.Equal(t, "epic", result.DepotRows[0].Service)
	assert.Equal(t, "Portal", result.DepotRows[1].GameName)
	assert.Equal(t, "wsus", result.DepotRows[2].Service)
}

// TestEngine_BuildView_UnlimitedSinglePage 不限分页时只有一页
func TestEngine_BuildView_UnlimitedSinglePage(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.ItemsPerPage = domain.ItemsPerPageUnlimited
	eng := NewEngine()

	result := eng.BuildView(viewRecords(), 1, ViewRequest{Mode: domain.ViewModeCompact, Page: 1, Settings: settings})
	assert.Equal(t, 1, result.TotalPages)
	assert.Len(t, result.Items, result.TotalItems)
}

func TestBuildExportItems_NoPagination(t *testing.T) {
	settings := domain.DefaultSettings()
	settings.ItemsPerPage = 1

	items := BuildExportItems(viewRecords(), settings)
	assert.Len(t, items, 3) // 分页设置对导出无效
}
