package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// MockSettingsService Mock Service
type MockSettingsService struct {
	mock.Mock
}

func (m *MockSettingsService) Get(ctx context.Context) (domain.Settings, error) {
	args := m.Called()
	return args.Get(0).(domain.Settings), args.Error(1)
}

func (m *MockSettingsService) Update(ctx context.Context, settings domain.Settings) error {
	args := m.Called(settings)
	return args.Error(0)
}

func (m *MockSettingsService) UpdateKey(ctx context.Context, key, value string) (domain.Settings, error) {
	args := m.Called(key, value)
	return args.Get(0).(domain.Settings), args.Error(1)
}

// TestSettingsHandler_GetSettings 测试获取设置
func TestSettingsHandler_GetSettings(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.GET("/api/settings", handler.GetSettings)

	settings := domain.DefaultSettings()
	settings.SortOrder = domain.SortLargest
	mockService.On("Get").Return(settings, nil)

	req := httptest.NewRequest("GET", "/api/settings", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response domain.Settings
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, domain.SortLargest, response.SortOrder)
	assert.Equal(t, domain.ViewModeCompact, response.ViewMode)

	mockService.AssertExpectations(t)
}

// TestSettingsHandler_UpdateSettings 测试整体替换设置
func TestSettingsHandler_UpdateSettings(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.PUT("/api/settings", handler.UpdateSettings)

	updated := domain.DefaultSettings()
	updated.ViewMode = domain.ViewModeRetro
	updated.HideLocalhost = true

	mockService.On("Update", mock.MatchedBy(func(s domain.Settings) bool {
		return s.ViewMode == domain.ViewModeRetro && s.HideLocalhost
	})).Return(nil)

	body, _ := json.Marshal(updated)
	req := httptest.NewRequest("PUT", "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockService.AssertExpectations(t)
}

// TestSettingsHandler_UpdateSettings_InvalidPayload 测试非法请求体
func TestSettingsHandler_UpdateSettings_InvalidPayload(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.PUT("/api/settings", handler.UpdateSettings)

	req := httptest.NewRequest("PUT", "/api/settings", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertNotCalled(t, "Update", mock.Anything)
}

// TestSettingsHandler_UpdateSettings_ValidationError 测试校验失败返回 400
func TestSettingsHandler_UpdateSettings_ValidationError(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.PUT("/api/settings", handler.UpdateSettings)

	mockService.On("Update", mock.Anything).Return(fmt.Errorf("invalid sort order: bogus"))

	body := []byte(`{"sortOrder":"bogus","viewMode":"compact"}`)
	req := httptest.NewRequest("PUT", "/api/settings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

// TestSettingsHandler_UpdateSettingKey 测试单键更新
func TestSettingsHandler_UpdateSettingKey(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.PATCH("/api/settings/:key", handler.UpdateSettingKey)

	updated := domain.DefaultSettings()
	updated.SortOrder = domain.SortOldest
	mockService.On("UpdateKey", "sortOrder", "oldest").Return(updated, nil)

	body := []byte(`{"value":"oldest"}`)
	req := httptest.NewRequest("PATCH", "/api/settings/sortOrder", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response domain.Settings
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, domain.SortOldest, response.SortOrder)

	mockService.AssertExpectations(t)
}

// TestSettingsHandler_UpdateSettingKey_UnknownKey 测试未知键
func TestSettingsHandler_UpdateSettingKey_UnknownKey(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.PATCH("/api/settings/:key", handler.UpdateSettingKey)

	mockService.On("UpdateKey", "turboMode", "on").
		Return(domain.Settings{}, fmt.Errorf("unknown setting key: turboMode"))

	body := []byte(`{"value":"on"}`)
	req := httptest.NewRequest("PATCH", "/api/settings/turboMode", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}

// TestSettingsHandler_UpdateSettingKey_InvalidValue 测试非法取值
func TestSettingsHandler_UpdateSettingKey_InvalidValue(t *testing.T) {
	mockService := new(MockSettingsService)
	handler := NewSettingsHandler(mockService, handlerTestLogger())
	router := setupTestRouter()
	router.PATCH("/api/settings/:key", handler.UpdateSettingKey)

	mockService.On("UpdateKey", "viewMode", "holographic").
		Return(domain.Settings{}, fmt.Errorf("invalid value for viewMode: holographic"))

	body := []byte(`{"value":"holographic"}`)
	req := httptest.NewRequest("PATCH", "/api/settings/viewMode", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockService.AssertExpectations(t)
}
