package engine

import (
	"sort"
	"strings"
	"time"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// ViewItem 排序/分页的统一条目：分组或未分组的单条记录，二者必居其一
type ViewItem struct {
	Group    *domain.DownloadGroup `json:"group,omitempty"`
	Download *domain.Download      `json:"download,omitempty"`
}

// IsGroup 是否为分组条目
func (it ViewItem) IsGroup() bool {
	return it.Group != nil
}

// latestTime 最近活跃时间：记录取开始时间，分组取成员最晚开始时间
func (it ViewItem) latestTime() time.Time {
	if it.Group != nil {
		return it.Group.LastSeen
	}
	if it.Download != nil {
		return it.Download.StartTimeUTC
	}
	return time.Time{}
}

// oldestTime 最早活跃时间：分组取成员最早开始时间。
// latest 用最晚、oldest 用最早是前端的既有行为：新活动把组排上去，
// 组的"年龄"却按最老成员算。保持不变。
func (it ViewItem) oldestTime() time.Time {
	if it.Group != nil {
		return it.Group.FirstSeen
	}
	if it.Download != nil {
		return it.Download.StartTimeUTC
	}
	return time.Time{}
}

// totalBytes 条目总字节数
func (it ViewItem) totalBytes() int64 {
	if it.Group != nil {
		return it.Group.TotalBytes
	}
	if it.Download != nil {
		return it.Download.TotalBytes
	}
	return 0
}

// hitPercent 缓存命中率，总量为 0 时按 0
func (it ViewItem) hitPercent() float64 {
	if it.Group != nil {
		return it.Group.CacheHitPercent()
	}
	if it.Download != nil {
		return it.Download.CacheHitPercent()
	}
	return 0
}

// serviceName 服务名
func (it ViewItem) serviceName() string {
	if it.Group != nil {
		return it.Group.Service
	}
	if it.Download != nil {
		return it.Download.Service
	}
	return ""
}

// memberCount 会话数，单条记录计 1
func (it ViewItem) memberCount() int {
	if it.Group != nil {
		return it.Group.Count
	}
	if it.Download != nil {
		return 1
	}
	return 0
}

// displayName 展示名：分组名，记录用游戏名、缺失时退回服务名
func (it ViewItem) displayName() string {
	if it.Group != nil {
		return it.Group.Name
	}
	if it.Download != nil {
		if it.Download.GameName != "" {
			return it.Download.GameName
		}
		return it.Download.Service
	}
	return ""
}

// SortItems 按指定方式稳定排序。
// groupByFrequency 开启且排序方式为 latest/oldest/largest/smallest 时，
// 先分桶：多成员分组、单成员分组、未分组记录，各桶独立排序后按该顺序拼接；
// 其余五种排序方式不分桶，整体排一遍。
func SortItems(items []ViewItem, order domain.SortOrder, groupByFrequency bool) []ViewItem {
	if len(items) <= 1 {
		return items
	}

	if groupByFrequency && frequencyBucketed(order) {
		multi := make([]ViewItem, 0, len(items))
		single := make([]ViewItem, 0)
		loose := make([]ViewItem, 0)
		for _, it := range items {
			switch {
			case it.IsGroup() && it.Group.Count > 1:
				multi = append(multi, it)
			case it.IsGroup():
				single = append(single, it)
			default:
				loose = append(loose, it)
			}
		}
		sortBucket(multi, order)
		sortBucket(single, order)
		sortBucket(loose, order)

		out := make([]ViewItem, 0, len(items))
		out = append(out, multi...)
		out = append(out, single...)
		out = append(out, loose...)
		return out
	}

	sortBucket(items, order)
	return items
}

// frequencyBucketed 该排序方式是否参与频次分桶
func frequencyBucketed(order domain.SortOrder) bool {
	switch order {
	case domain.SortLatest, domain.SortOldest, domain.SortLargest, domain.SortSmallest:
		return true
	}
	return false
}

// sortBucket 原地稳定排序，相等键保持输入相对顺序
func sortBucket(items []ViewItem, order domain.SortOrder) {
	switch order {
	case domain.SortLatest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].latestTime().After(items[j].latestTime())
		})
	case domain.SortOldest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].oldestTime().Before(items[j].oldestTime())
		})
	case domain.SortLargest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].totalBytes() > items[j].totalBytes()
		})
	case domain.SortSmallest:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].totalBytes() < items[j].totalBytes()
		})
	case domain.SortService:
		sort.SliceStable(items, func(i, j int) bool {
			si, sj := strings.ToLower(items[i].serviceName()), strings.ToLower(items[j].serviceName())
			if si != sj {
				return si < sj
			}
			// 同服务按最近活跃时间倒序
			return items[i].latestTime().After(items[j].latestTime())
		})
	case domain.SortEfficiency:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].hitPercent() > items[j].hitPercent()
		})
	case domain.SortEfficiencyLow:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].hitPercent() < items[j].hitPercent()
		})
	case domain.SortSessions:
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].memberCount() > items[j].memberCount()
		})
	case domain.SortAlphabetical:
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].displayName()) < strings.ToLower(items[j].displayName())
		})
	default:
		// 未知排序按缺省 latest 处理
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].latestTime().After(items[j].latestTime())
		})
	}
}
