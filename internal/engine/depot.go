package engine

import (
	"fmt"
	"sort"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// BuildDepotGroups 表格视图的细粒度聚合：有 depot id 的记录按
// (depotId, clientIp) 合并，没有的按 (service, clientIp, recordId)
// 独立成行。每行代表一个 depot 到一个客户端的一次连续传输。
func BuildDepotGroups(records []*domain.Download) []*domain.DepotGroup {
	if records == nil {
		return []*domain.DepotGroup{}
	}

	groups := []*domain.DepotGroup{}
	byKey := make(map[string]*depotAccumulator)

	for _, rec := range records {
		if rec == nil {
			continue
		}

		var key string
		if rec.DepotID != nil {
			key = fmt.Sprintf("depot:%d:%s", *rec.DepotID, rec.ClientIP)
		} else {
			key = fmt.Sprintf("single:%s:%s:%d", rec.Service, rec.ClientIP, rec.ID)
		}

		acc, ok := byKey[key]
		if !ok {
			grp := &domain.DepotGroup{
				ID:        key,
				DepotID:   rec.DepotID,
				GameName:  rec.GameName,
				GameAppID: rec.GameAppID,
				Service:   rec.Service,
				ClientIP:  rec.ClientIP,
				FirstSeen: rec.StartTimeUTC,
				LastSeen:  rec.StartTimeUTC,
				RecordIDs: []int64{},
			}
			acc = &depotAccumulator{group: grp}
			byKey[key] = acc
			groups = append(groups, grp)
		}

		grp := acc.group
		grp.TotalBytes += rec.TotalBytes
		grp.CacheHitBytes += rec.CacheHitBytes
		grp.CacheMissBytes += rec.CacheMissBytes
		grp.Count++
		grp.RecordIDs = append(grp.RecordIDs, rec.ID)
		grp.IsActive = grp.IsActive || rec.IsActive
		if rec.StartTimeUTC.Before(grp.FirstSeen) {
			grp.FirstSeen = rec.StartTimeUTC
		}
		if rec.StartTimeUTC.After(grp.LastSeen) {
			grp.LastSeen = rec.StartTimeUTC
		}
		// 游戏名可能按记录陆续解析出来，取首个非空的
		if grp.GameName == "" && rec.GameName != "" {
			grp.GameName = rec.GameName
			grp.GameAppID = rec.GameAppID
		}

		// 加权平均吞吐：速度或字节为 0 的记录不参与，
		// 既不计分子也不计分母，避免未完成测量窗口的除零伪值
		if rec.AverageBytesPerSecond > 0 && rec.TotalBytes > 0 {
			acc.weightedSpeedSum += rec.AverageBytesPerSecond * float64(rec.TotalBytes)
			acc.weightSum += float64(rec.TotalBytes)
		}
	}

	for _, acc := range byKey {
		if acc.weightSum > 0 {
			acc.group.AverageBytesPerSecond = acc.weightedSpeedSum / acc.weightSum
		}
		sort.Slice(acc.group.RecordIDs, func(i, j int) bool {
			return acc.group.RecordIDs[i] < acc.group.RecordIDs[j]
		})
	}

	return groups
}

// depotAccumulator 聚合期间的加权和，不进最终视图模型
type depotAccumulator struct {
	group            *domain.DepotGroup
	weightedSpeedSum float64
	weightSum        float64
}
