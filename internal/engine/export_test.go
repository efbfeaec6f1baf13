package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportItems() []ViewItem {
	grp := &domain.DownloadGroup{
		ID:   "game:Portal",
		Name: "Portal",
		Type: domain.GroupTypeGame,
		Downloads: []*domain.Download{
			makeRecord(1, "steam", "10.0.0.1", "Portal", 4_000),
			makeRecord(2, "steam", "10.0.0.2", "Portal", 6_000),
		},
	}
	solo := withAppID(makeRecord(3, "epic", "10.0.0.3", "Fortnite", 3_000), 2048)
	return []ViewItem{{Group: grp}, {Download: solo}}
}

func TestExportCSV_HeaderAndOrder(t *testing.T) {
	data, err := ExportCSV(exportItems())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4) // 表头 + 组内两条 + 散件一条
	assert.Equal(t,
		"id,service,clientIp,startTimeUtc,endTimeUtc,cacheHitBytes,cacheMissBytes,totalBytes,cacheHitPercent,isActive,gameName,gameAppId",
		strings.TrimSpace(lines[0]))

	// 分组摊平后成员先于散件，保持视图顺序
	assert.True(t, strings.HasPrefix(lines[1], "1,steam,10.0.0.1,"))
	assert.True(t, strings.HasPrefix(lines[2], "2,steam,10.0.0.2,"))
	assert.True(t, strings.HasPrefix(lines[3], "3,epic,10.0.0.3,"))
}

func TestExportCSV_HitPercentTwoDecimals(t *testing.T) {
	rec := makeRecord(1, "steam", "10.0.0.1", "Portal", 3)
	rec.CacheHitBytes = 1
	rec.CacheMissBytes = 2

	data, err := ExportCSV([]ViewItem{{Download: rec}})
	require.NoError(t, err)
	assert.Contains(t, string(data), ",33.33,")
}

func TestExportCSV_EmptyEndTime(t *testing.T) {
	rec := active(makeRecord(1, "steam", "10.0.0.1", "Portal", 1_000))

	data, err := ExportCSV([]ViewItem{{Download: rec}})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	// 未结束的会话 endTimeUtc 留空而不是零值时间
	fields := strings.Split(lines[1], ",")
	require.Greater(t, len(fields), 4)
	assert.Empty(t, fields[4])
	assert.Contains(t, lines[1], ",true,")
}

func TestExportJSON_PreservesGroups(t *testing.T) {
	data, err := ExportJSON(exportItems())
	require.NoError(t, err)

	var decoded []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)

	// 第一项是分组，成员数组原样保留
	var grp domain.DownloadGroup
	require.NoError(t, json.Unmarshal(decoded[0]["group"], &grp))
	assert.Equal(t, "Portal", grp.Name)
	assert.Len(t, grp.Downloads, 2)
}

func TestExportCSV_Empty(t *testing.T) {
	data, err := ExportCSV(nil)
	require.NoError(t, err)
	// 空集也输出表头，方便下游按列解析
	assert.Contains(t, string(data), "id,service")
}
