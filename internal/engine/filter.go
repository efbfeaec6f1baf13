package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// 小文件阈值：低于 1 MiB 视为噪音
const smallFileThreshold = 1 << 20

// steamAppPattern 未映射的 Steam 应用占位名，如 "Steam App 570"
var steamAppPattern = regexp.MustCompile(`^Steam App \d+$`)

const unknownSteamGameName = "Unknown Steam Game"

// isSteamService Steam 服务判定（大小写不敏感）
func isSteamService(service string) bool {
	return strings.EqualFold(service, "steam")
}

// isLocalhostIP 本机回环地址判定
func isLocalhostIP(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1"
}

// isUnknownSteamName 判断游戏名是否属于 "未识别"：
// 为空、等于占位名、包含 unknown（不分大小写）、或匹配 "Steam App <数字>"
func isUnknownSteamName(name string) bool {
	if name == "" || name == unknownSteamGameName {
		return true
	}
	if strings.Contains(strings.ToLower(name), "unknown") {
		return true
	}
	return steamAppPattern.MatchString(name)
}

// FilterRecords 按操作员设定过滤记录。纯函数，保持输入顺序。
// 输入为 nil 时返回空切片，过滤器不对上游数据形态报错。
func FilterRecords(records []*domain.Download, settings domain.FilterSettings) []*domain.Download {
	if records == nil {
		return []*domain.Download{}
	}

	out := make([]*domain.Download, 0, len(records))
	query := strings.ToLower(strings.TrimSpace(settings.SearchQuery))

	for _, rec := range records {
		if rec == nil {
			continue
		}

		// 零字节记录（纯元数据请求）
		if !settings.ShowZeroBytes && rec.TotalBytes == 0 {
			continue
		}

		// 小文件噪音；零字节记录由上一条规则单独管辖
		if !settings.ShowSmallFiles && rec.TotalBytes > 0 && rec.TotalBytes < smallFileThreshold {
			continue
		}

		if settings.HideLocalhost && isLocalhostIP(rec.ClientIP) {
			continue
		}

		// 仅对 Steam 服务生效；活跃记录名字可能尚未解析，无条件豁免
		if settings.HideUnknownGames && isSteamService(rec.Service) && !rec.IsActive &&
			isUnknownSteamName(rec.GameName) {
			continue
		}

		if settings.SelectedService != "" && settings.SelectedService != "all" &&
			!strings.EqualFold(rec.Service, settings.SelectedService) {
			continue
		}

		if settings.SelectedClient != "" && settings.SelectedClient != "all" &&
			rec.ClientIP != settings.SelectedClient {
			continue
		}

		if query != "" && !matchesSearch(rec, query) {
			continue
		}

		out = append(out, rec)
	}

	return out
}

// matchesSearch 自由文本检索：游戏名、服务名、客户端 IP、depot id、app id
// 任一字段命中即保留
func matchesSearch(rec *domain.Download, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(rec.GameName), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Service), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.ClientIP), lowerQuery) {
		return true
	}
	if rec.DepotID != nil && strings.Contains(strconv.FormatUint(uint64(*rec.DepotID), 10), lowerQuery) {
		return true
	}
	if rec.GameAppID != nil && strings.Contains(strconv.FormatUint(uint64(*rec.GameAppID), 10), lowerQuery) {
		return true
	}
	return false
}
