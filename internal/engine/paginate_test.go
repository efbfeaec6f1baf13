package engine

import (
	"testing"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/stretchr/testify/assert"
)

// TestPaginate_LastPartialPage 45 条、每页 20：3 页，第 3 页恰好 5 条
func TestPaginate_LastPartialPage(t *testing.T) {
	items := make([]int, 45)
	for i := range items {
		items[i] = i
	}

	assert.Equal(t, 3, TotalPages(len(items), 20))
	assert.Len(t, Paginate(items, 20, 1), 20)
	assert.Len(t, Paginate(items, 20, 2), 20)
	assert.Len(t, Paginate(items, 20, 3), 5)
}

// TestPaginate_Coverage 逐页拼接还原完整序列，每条恰好出现一次
func TestPaginate_Coverage(t *testing.T) {
	items := make([]int, 53)
	for i := range items {
		items[i] = i
	}

	pageSize := 7
	var rebuilt []int
	for page := 1; page <= TotalPages(len(items), pageSize); page++ {
		rebuilt = append(rebuilt, Paginate(items, pageSize, page)...)
	}
	assert.Equal(t, items, rebuilt)
}

// TestPaginate_Unlimited 不分页时整页返回且恒为 1 页
func TestPaginate_Unlimited(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, items, Paginate(items, domain.ItemsPerPageUnlimited, 1))
	assert.Equal(t, 1, TotalPages(len(items), domain.ItemsPerPageUnlimited))
	// 页码在 unlimited 下无意义
	assert.Equal(t, items, Paginate(items, domain.ItemsPerPageUnlimited, 99))
}

// TestPaginate_OutOfRange 越界页返回空，控制器不做钳制（由调用方重置页码）
func TestPaginate_OutOfRange(t *testing.T) {
	items := []int{1, 2, 3}
	assert.Empty(t, Paginate(items, 2, 5))
	assert.Equal(t, []int{1, 2}, Paginate(items, 2, 0)) // 非法页码按第 1 页
}

// TestTotalPages_Empty 空集 0 页
func TestTotalPages_Empty(t *testing.T) {
	assert.Equal(t, 0, TotalPages(0, 20))
}
