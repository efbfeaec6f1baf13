package engine

import (
	"sort"
	"strings"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// 共享桶的键与展示名
const (
	unknownGamesBucketKey   = "unknown-steam-games"
	unknownGamesBucketName  = "Unknown Steam Games"
	unmappedAppsBucketKey   = "unmapped-steam-apps"
	unmappedAppsBucketName  = "Unmapped Steam Apps"
	gameKeyPrefix           = "game:"
	serviceKeyPrefix        = "service:"
)

// GroupResult 分组结果：命中分组键的进 Groups，其余原样进 Individuals
type GroupResult struct {
	Groups      []*domain.DownloadGroup
	Individuals []*domain.Download
}

// GroupRecords 把过滤后的记录集划分为逻辑分组。
// 纯函数，每次全量重建；键到分组用 map 索引，整体 O(n)。
//
// 键推导按优先级：
//  1. 有效游戏名          -> game:<名字>
//  2. groupUnknown 且未识别 -> unknown-steam-games 共享桶
//  3. "Steam App <数字>"   -> unmapped-steam-apps 共享桶
//  4. 非 Steam 服务        -> service:<服务名小写>
//  5. 其余（Steam 未识别且不并桶）-> 不分组
func GroupRecords(records []*domain.Download, groupUnknown bool) GroupResult {
	result := GroupResult{
		Groups:      []*domain.DownloadGroup{},
		Individuals: []*domain.Download{},
	}
	if records == nil {
		return result
	}

	byKey := make(map[string]*domain.DownloadGroup)
	clientSets := make(map[string]map[string]struct{})

	appendTo := func(key, name string, groupType domain.GroupType, rec *domain.Download) {
		grp, ok := byKey[key]
		if !ok {
			grp = &domain.DownloadGroup{
				ID:        key,
				Name:      name,
				Type:      groupType,
				Service:   rec.Service,
				Downloads: []*domain.Download{},
				FirstSeen: rec.StartTimeUTC,
				LastSeen:  rec.StartTimeUTC,
			}
			byKey[key] = grp
			clientSets[key] = make(map[string]struct{})
			result.Groups = append(result.Groups, grp)
		}

		grp.Downloads = append(grp.Downloads, rec)
		grp.TotalBytes += rec.TotalBytes
		grp.CacheHitBytes += rec.CacheHitBytes
		grp.CacheMissBytes += rec.CacheMissBytes
		grp.Count++
		if rec.StartTimeUTC.Before(grp.FirstSeen) {
			grp.FirstSeen = rec.StartTimeUTC
		}
		if rec.StartTimeUTC.After(grp.LastSeen) {
			grp.LastSeen = rec.StartTimeUTC
		}
		if rec.ClientIP != "" {
			clientSets[key][rec.ClientIP] = struct{}{}
		}
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}

		switch {
		case rec.GameName != "" && rec.GameName != unknownSteamGameName && !steamAppPattern.MatchString(rec.GameName):
			appendTo(gameKeyPrefix+rec.GameName, rec.GameName, domain.GroupTypeGame, rec)

		case groupUnknown && isSteamService(rec.Service) && isUnknownSteamName(rec.GameName):
			appendTo(unknownGamesBucketKey, unknownGamesBucketName, domain.GroupTypeContent, rec)

		case steamAppPattern.MatchString(rec.GameName):
			appendTo(unmappedAppsBucketKey, unmappedAppsBucketName, domain.GroupTypeContent, rec)

		case !isSteamService(rec.Service):
			key := serviceKeyPrefix + strings.ToLower(rec.Service)
			appendTo(key, rec.Service, domain.GroupTypeContent, rec)

		default:
			result.Individuals = append(result.Individuals, rec)
		}
	}

	// 收尾：客户端集合落成切片；纯元数据的服务分组标为 metadata
	for _, grp := range result.Groups {
		set := clientSets[grp.ID]
		grp.ClientIPs = make([]string, 0, len(set))
		for ip := range set {
			grp.ClientIPs = append(grp.ClientIPs, ip)
		}
		// map 遍历无序，排序保证重算结果可复现
		sort.Strings(grp.ClientIPs)
		if strings.HasPrefix(grp.ID, serviceKeyPrefix) && grp.TotalBytes == 0 {
			grp.Type = domain.GroupTypeMetadata
		}
	}

	return result
}

// FilterGroupsByName 第二遍分组级过滤：隐藏未识别游戏时，
// 丢弃展示名含 unknown（不分大小写）或等于未映射桶名的分组。
// 分组名在聚合后才存在，因此无法并入记录级过滤。
func FilterGroupsByName(groups []*domain.DownloadGroup, hideUnknownGames bool) []*domain.DownloadGroup {
	if !hideUnknownGames {
		return groups
	}

	out := make([]*domain.DownloadGroup, 0, len(groups))
	for _, grp := range groups {
		if strings.Contains(strings.ToLower(grp.Name), "unknown") {
			continue
		}
		if grp.Name == unmappedAppsBucketName {
			continue
		}
		out = append(out, grp)
	}
	return out
}
