package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/lancache-dash/lancache-dash-go/internal/service"
)

// SettingsHandler 展示设置处理器
type SettingsHandler struct {
	settings service.SettingsService
	logger   *logrus.Logger
}

// NewSettingsHandler 创建展示设置处理器实例
func NewSettingsHandler(settings service.SettingsService, logger *logrus.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings: settings,
		logger:   logger,
	}
}

// GetSettings 获取当前设置
// GET /api/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load settings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load settings",
		})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings 整体替换设置
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	var settings domain.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid settings payload: " + err.Error(),
		})
		return
	}

	if err := h.settings.Update(c.Request.Context(), settings); err != nil {
		// 校验失败和存储失败走不同状态码
		if strings.HasPrefix(err.Error(), "invalid ") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Failed to update settings")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to update settings",
		})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// updateKeyRequest 单键更新请求体
type updateKeyRequest struct {
	Value string `json:"value"`
}

// UpdateSettingKey 更新单个设置键
// PATCH /api/settings/:key  body: {"value": "latest"}
func (h *SettingsHandler) UpdateSettingKey(c *gin.Context) {
	key := c.Param("key")

	var req updateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
		})
		return
	}

	updated, err := h.settings.UpdateKey(c.Request.Context(), key, req.Value)
	if err != nil {
		if strings.HasPrefix(err.Error(), "unknown setting key") ||
			strings.HasPrefix(err.Error(), "invalid value") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).WithField("key", key).Error("Failed to update setting")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to update setting",
		})
		return
	}

	c.JSON(http.StatusOK, updated)
}
