package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// BuildMetrics 视图构建指标上报, 可选
type BuildMetrics interface {
	RecordViewBuild(duration time.Duration, cached bool)
}

// ViewRequest 一次视图计算的全部输入
type ViewRequest struct {
	Mode     domain.ViewMode
	Page     int
	Settings domain.Settings
}

// ViewResult 渲染器消费的视图模型。
// 表格视图自行按 depot 聚合再分页，因此它的条目/页数统计与
// 另外两种视图天然不同，这里各自上报，不做调和。
type ViewResult struct {
	Mode       domain.ViewMode        `json:"mode"`
	Items      []ViewItem             `json:"items,omitempty"`     // compact/cards
	DepotRows  []*domain.DepotGroup   `json:"depotRows,omitempty"` // retro
	Page       int                    `json:"page"`
	PageSize   int                    `json:"pageSize"`
	TotalItems int                    `json:"totalItems"`
	TotalPages int                    `json:"totalPages"`
}

// viewKey 重算依赖元组：记录集版本之外的全部输入。
// Settings 全部字段可比较，直接做 map 键。
type viewKey struct {
	mode     domain.ViewMode
	page     int
	settings domain.Settings
}

// Engine 视图引擎：纯重算 + 依赖元组记忆化。
// 记录集版本变化时丢弃全部缓存重建，绝不增量修补聚合结果。
type Engine struct {
	metrics BuildMetrics

	mu       sync.Mutex
	revision uint64
	cache    map[viewKey]*ViewResult
}

func NewEngine() *Engine {
	return &Engine{cache: make(map[viewKey]*ViewResult)}
}

// SetMetrics 挂上指标上报, 需在开始服务请求前调用
func (e *Engine) SetMetrics(m BuildMetrics) {
	e.metrics = m
}

// BuildView 计算一次视图。revision 标识当前记录集的版本，
// 由数据层在记录变化时递增；相同 (revision, settings, mode, page)
// 直接复用上次结果。
func (e *Engine) BuildView(records []*domain.Download, revision uint64, req ViewRequest) *ViewResult {
	start := time.Now()

	e.mu.Lock()
	if revision != e.revision {
		e.revision = revision
		e.cache = make(map[viewKey]*ViewResult)
	}
	key := viewKey{mode: req.Mode, page: req.Page, settings: req.Settings}
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.RecordViewBuild(time.Since(start), true)
		}
		return cached
	}
	e.mu.Unlock()

	result := computeView(records, req)

	e.mu.Lock()
	if revision == e.revision {
		e.cache[key] = result
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordViewBuild(time.Since(start), false)
	}
	return result
}

// computeView 无缓存的完整管线：过滤 -> 聚合 -> 排序 -> 分页
func computeView(records []*domain.Download, req ViewRequest) *ViewResult {
	filtered := FilterRecords(records, req.Settings.FilterSettings)

	if req.Mode == domain.ViewModeRetro {
		rows := BuildDepotGroups(filtered)
		sortDepotRows(rows, req.Settings.SortOrder)
		pageSize := req.Settings.RetroItemsPerPage
		return &ViewResult{
			Mode:       domain.ViewModeRetro,
			DepotRows:  Paginate(rows, pageSize, req.Page),
			Page:       req.Page,
			PageSize:   pageSize,
			TotalItems: len(rows),
			TotalPages: TotalPages(len(rows), pageSize),
		}
	}

	items := assembleItems(filtered, req.Settings)
	pageSize := req.Settings.ItemsPerPage
	return &ViewResult{
		Mode:       req.Mode,
		Items:      Paginate(items, pageSize, req.Page),
		Page:       req.Page,
		PageSize:   pageSize,
		TotalItems: len(items),
		TotalPages: TotalPages(len(items), pageSize),
	}
}

// BuildExportItems 导出用的完整有序集：过滤 + 聚合 + 排序，不分页
func BuildExportItems(records []*domain.Download, settings domain.Settings) []ViewItem {
	filtered := FilterRecords(records, settings.FilterSettings)
	return assembleItems(filtered, settings)
}

// assembleItems 聚合出分组和散件，套用分组名过滤，再整体排序
func assembleItems(filtered []*domain.Download, settings domain.Settings) []ViewItem {
	grouped := GroupRecords(filtered, settings.GroupUnknownGames)
	groups := FilterGroupsByName(grouped.Groups, settings.HideUnknownGames)

	items := make([]ViewItem, 0, len(groups)+len(grouped.Individuals))
	for _, grp := range groups {
		items = append(items, ViewItem{Group: grp})
	}
	for _, rec := range grouped.Individuals {
		items = append(items, ViewItem{Download: rec})
	}

	return SortItems(items, settings.SortOrder, settings.GroupByFrequency)
}

// sortDepotRows 表格行排序，语义与 ViewItem 各比较器对应
func sortDepotRows(rows []*domain.DepotGroup, order domain.SortOrder) {
	switch order {
	case domain.SortOldest:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].FirstSeen.Before(rows[j].FirstSeen)
		})
	case domain.SortLargest:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].TotalBytes > rows[j].TotalBytes
		})
	case domain.SortSmallest:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].TotalBytes < rows[j].TotalBytes
		})
	case domain.SortService:
		sort.SliceStable(rows, func(i, j int) bool {
			si, sj := strings.ToLower(rows[i].Service), strings.ToLower(rows[j].Service)
			if si != sj {
				return si < sj
			}
			return rows[i].LastSeen.After(rows[j].LastSeen)
		})
	case domain.SortEfficiency:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].CacheHitPercent() > rows[j].CacheHitPercent()
		})
	case domain.SortEfficiencyLow:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].CacheHitPercent() < rows[j].CacheHitPercent()
		})
	case domain.SortSessions:
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Count > rows[j].Count
		})
	case domain.SortAlphabetical:
		sort.SliceStable(rows, func(i, j int) bool {
			return strings.ToLower(depotRowName(rows[i])) < strings.ToLower(depotRowName(rows[j]))
		})
	default: // latest
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].LastSeen.After(rows[j].LastSeen)
		})
	}
}

// depotRowName 表格行展示名, 无游戏名时退回服务名, 与 ViewItem.displayName 一致
func depotRowName(row *domain.DepotGroup) string {
	if row.GameName != "" {
		return row.GameName
	}
	return row.Service
}
