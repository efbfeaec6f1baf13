package domain

import (
	"strconv"
	"time"
)

// SortOrder 排序方式
type SortOrder string

const (
	SortLatest        SortOrder = "latest"
	SortOldest        SortOrder = "oldest"
	SortLargest       SortOrder = "largest"
	SortSmallest      SortOrder = "smallest"
	SortService       SortOrder = "service"
	SortEfficiency    SortOrder = "efficiency"
	SortEfficiencyLow SortOrder = "efficiency-low"
	SortSessions      SortOrder = "sessions"
	SortAlphabetical  SortOrder = "alphabetical"
)

// Valid 检查排序方式是否已知
func (o SortOrder) Valid() bool {
	switch o {
	case SortLatest, SortOldest, SortLargest, SortSmallest, SortService,
		SortEfficiency, SortEfficiencyLow, SortSessions, SortAlphabetical:
		return true
	}
	return false
}

// ViewMode 渲染模式
type ViewMode string

const (
	ViewModeCompact ViewMode = "compact" // 紧凑列表
	ViewModeCards   ViewMode = "cards"   // 详情卡片
	ViewModeRetro   ViewMode = "retro"   // 表格（按 depot 聚合）
)

// Valid 检查渲染模式是否已知
func (m ViewMode) Valid() bool {
	switch m {
	case ViewModeCompact, ViewModeCards, ViewModeRetro:
		return true
	}
	return false
}

// ItemsPerPageUnlimited 不分页（一页返回全部）
const ItemsPerPageUnlimited = -1

// FilterSettings 记录过滤条件，各谓词独立开关，逻辑与
type FilterSettings struct {
	ShowZeroBytes    bool   `json:"showZeroBytes"`
	ShowSmallFiles   bool   `json:"showSmallFiles"`
	HideLocalhost    bool   `json:"hideLocalhost"`
	HideUnknownGames bool   `json:"hideUnknownGames"`
	SelectedService  string `json:"selectedService"`
	SelectedClient   string `json:"selectedClient"`
	SearchQuery      string `json:"searchQuery"`
}

// Settings 操作员偏好，跨会话持久化。
// 聚合管线只读；修改只经由 SettingsService。
type Settings struct {
	FilterSettings

	SortOrder SortOrder `json:"sortOrder"`
	ViewMode  ViewMode  `json:"viewMode"`
	// 表格视图与其它两种视图各自独立的每页条数
	ItemsPerPage      int `json:"itemsPerPage"`
	RetroItemsPerPage int `json:"retroItemsPerPage"`

	GroupUnknownGames bool `json:"groupUnknownGames"`
	GroupByFrequency  bool `json:"groupByFrequency"`
	AestheticMode     bool `json:"aestheticMode"`
	FullHeightBanners bool `json:"fullHeightBanners"`
	ScrollOnExpand    bool `json:"scrollOnExpand"`
	ShowDataSource    bool `json:"showDataSource"`
}

// DefaultSettings 缺省偏好
func DefaultSettings() Settings {
	return Settings{
		FilterSettings: FilterSettings{
			ShowZeroBytes:    false,
			ShowSmallFiles:   true,
			HideLocalhost:    false,
			HideUnknownGames: false,
			SelectedService:  "all",
			SelectedClient:   "all",
			SearchQuery:      "",
		},
		SortOrder:         SortLatest,
		ViewMode:          ViewModeCompact,
		ItemsPerPage:      20,
		RetroItemsPerPage: 50,
		GroupUnknownGames: false,
		GroupByFrequency:  false,
		AestheticMode:     true,
		FullHeightBanners: false,
		ScrollOnExpand:    true,
		ShowDataSource:    false,
	}
}

// 持久化键名。跨版本必须保持稳定，改名等于丢失用户偏好。
const (
	SettingKeyShowZeroBytes     = "showZeroBytes"
	SettingKeyShowSmallFiles    = "showSmallFiles"
	SettingKeyHideLocalhost     = "hideLocalhost"
	SettingKeyHideUnknownGames  = "hideUnknownGames"
	SettingKeySelectedService   = "selectedService"
	SettingKeySelectedClient    = "selectedClient"
	SettingKeySearchQuery       = "searchQuery"
	SettingKeySortOrder         = "sortOrder"
	SettingKeyViewMode          = "viewMode"
	SettingKeyItemsPerPage      = "itemsPerPage"
	SettingKeyRetroItemsPerPage = "retroItemsPerPage"
	SettingKeyGroupUnknownGames = "groupUnknownGames"
	SettingKeyGroupByFrequency  = "groupByFrequency"
	SettingKeyAestheticMode     = "aestheticMode"
	SettingKeyFullHeightBanners = "fullHeightBanners"
	SettingKeyScrollOnExpand    = "scrollOnExpand"
	SettingKeyShowDataSource    = "showDataSource"
)

// ToMap 序列化为键值对（KV 存储用）
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		SettingKeyShowZeroBytes:     strconv.FormatBool(s.ShowZeroBytes),
		SettingKeyShowSmallFiles:    strconv.FormatBool(s.ShowSmallFiles),
		SettingKeyHideLocalhost:     strconv.FormatBool(s.HideLocalhost),
		SettingKeyHideUnknownGames:  strconv.FormatBool(s.HideUnknownGames),
		SettingKeySelectedService:   s.SelectedService,
		SettingKeySelectedClient:    s.SelectedClient,
		SettingKeySearchQuery:       s.SearchQuery,
		SettingKeySortOrder:         string(s.SortOrder),
		SettingKeyViewMode:          string(s.ViewMode),
		SettingKeyItemsPerPage:      strconv.Itoa(s.ItemsPerPage),
		SettingKeyRetroItemsPerPage: strconv.Itoa(s.RetroItemsPerPage),
		SettingKeyGroupUnknownGames: strconv.FormatBool(s.GroupUnknownGames),
		SettingKeyGroupByFrequency:  strconv.FormatBool(s.GroupByFrequency),
		SettingKeyAestheticMode:     strconv.FormatBool(s.AestheticMode),
		SettingKeyFullHeightBanners: strconv.FormatBool(s.FullHeightBanners),
		SettingKeyScrollOnExpand:    strconv.FormatBool(s.ScrollOnExpand),
		SettingKeyShowDataSource:    strconv.FormatBool(s.ShowDataSource),
	}
}

// SettingsFromMap 从键值对还原，缺失或非法的键退回缺省值
func SettingsFromMap(values map[string]string) Settings {
	s := DefaultSettings()

	parseBool := func(key string, target *bool) {
		if raw, ok := values[key]; ok {
			if v, err := strconv.ParseBool(raw); err == nil {
				*target = v
			}
		}
	}
	parseInt := func(key string, target *int) {
		if raw, ok := values[key]; ok {
			if v, err := strconv.Atoi(raw); err == nil && (v > 0 || v == ItemsPerPageUnlimited) {
				*target = v
			}
		}
	}

	parseBool(SettingKeyShowZeroBytes, &s.ShowZeroBytes)
	parseBool(SettingKeyShowSmallFiles, &s.ShowSmallFiles)
	parseBool(SettingKeyHideLocalhost, &s.HideLocalhost)
	parseBool(SettingKeyHideUnknownGames, &s.HideUnknownGames)
	parseBool(SettingKeyGroupUnknownGames, &s.GroupUnknownGames)
	parseBool(SettingKeyGroupByFrequency, &s.GroupByFrequency)
	parseBool(SettingKeyAestheticMode, &s.AestheticMode)
	parseBool(SettingKeyFullHeightBanners, &s.FullHeightBanners)
	parseBool(SettingKeyScrollOnExpand, &s.ScrollOnExpand)
	parseBool(SettingKeyShowDataSource, &s.ShowDataSource)
	parseInt(SettingKeyItemsPerPage, &s.ItemsPerPage)
	parseInt(SettingKeyRetroItemsPerPage, &s.RetroItemsPerPage)

	if raw, ok := values[SettingKeySelectedService]; ok && raw != "" {
		s.SelectedService = raw
	}
	if raw, ok := values[SettingKeySelectedClient]; ok && raw != "" {
		s.SelectedClient = raw
	}
	if raw, ok := values[SettingKeySearchQuery]; ok {
		s.SearchQuery = raw
	}
	if raw, ok := values[SettingKeySortOrder]; ok && SortOrder(raw).Valid() {
		s.SortOrder = SortOrder(raw)
	}
	if raw, ok := values[SettingKeyViewMode]; ok && ViewMode(raw).Valid() {
		s.ViewMode = ViewMode(raw)
	}

	return s
}

// Setting 偏好项持久化模型（KV 表）
type Setting struct {
	Key       string    `gorm:"primaryKey;type:varchar(64)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Setting) TableName() string {
	return "operator_settings"
}
