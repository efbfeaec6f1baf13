package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/service"
)

// ExportMetrics 导出指标上报
type ExportMetrics interface {
	RecordExport(format string)
}

// DownloadHandler 下载视图处理器
type DownloadHandler struct {
	downloads service.DownloadService
	logger    *logrus.Logger
	metrics   ExportMetrics
}

// NewDownloadHandler 创建下载视图处理器实例; metrics 可为 nil
func NewDownloadHandler(downloads service.DownloadService, logger *logrus.Logger, metrics ExportMetrics) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		logger:    logger,
		metrics:   metrics,
	}
}

// GetDownloads 获取一页下载视图
// GET /api/downloads?mode=compact&page=1
// mode 省略时使用持久化设置里的视图模式
func (h *DownloadHandler) GetDownloads(c *gin.Context) {
	pageStr := c.DefaultQuery("page", "1")
	mode := domain.ViewMode(c.Query("mode"))

	page, err := strconv.Atoi(pageStr)
	if err != nil || page <= 0 {
		page = 1
	}

	if mode != "" && !mode.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown view mode: %s", mode),
		})
		return
	}

	view, err := h.downloads.GetView(c.Request.Context(), mode, page)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build download view")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to build download view",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"view":     view,
		"revision": h.downloads.Revision(),
	})
}

// ExportDownloads 导出当前过滤排序结果（不分页）
// GET /api/downloads/export?format=csv
func (h *DownloadHandler) ExportDownloads(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "json" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported export format: %s", format),
		})
		return
	}

	data, contentType, err := h.downloads.Export(c.Request.Context(), format)
	if err != nil {
		h.logger.WithError(err).WithField("format", format).Error("Failed to export downloads")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to export downloads",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordExport(format)
	}

	filename := fmt.Sprintf("downloads-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, contentType, data)
}
