package engine

import "github.com/lancache-dash/lancache-dash-go/internal/domain"

// TotalPages 页数。pageSize 为 ItemsPerPageUnlimited 时恒为 1 页。
func TotalPages(itemCount, pageSize int) int {
	if pageSize == domain.ItemsPerPageUnlimited || pageSize <= 0 {
		return 1
	}
	if itemCount == 0 {
		return 0
	}
	return (itemCount + pageSize - 1) / pageSize
}

// Paginate 截取第 page 页（从 1 开始）。
// 不做页码钳制：过滤/排序/视图模式变化时由调用方重置回第 1 页，
// 越界页返回空切片。
func Paginate[T any](items []T, pageSize, page int) []T {
	if pageSize == domain.ItemsPerPageUnlimited || pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}

	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
