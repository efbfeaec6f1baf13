package engine

import (
	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// BuildActiveView "正在下载" 视图。
// 有快照时快照说了算，整体替换，绝不按字段合并；
// 快照尚未到达时（首屏）退回静态记录的 isActive 推断，
// 只为避免误导性的 "无活跃下载" 闪现，真快照一到即废弃。
func BuildActiveView(snapshot *domain.SpeedSnapshot, fallbackRecords []*domain.Download) domain.ActiveView {
	if snapshot != nil {
		games := snapshot.GameSpeeds
		if games == nil {
			games = []domain.GameSpeedInfo{}
		}
		clients := snapshot.ClientSpeeds
		if clients == nil {
			clients = []domain.ClientSpeedInfo{}
		}
		return domain.ActiveView{
			HasActive: snapshot.HasActiveDownloads,
			Games:     games,
			Clients:   clients,
		}
	}

	return domain.ActiveView{
		HasActive:    anyActive(fallbackRecords),
		Games:        []domain.GameSpeedInfo{},
		Clients:      []domain.ClientSpeedInfo{},
		FromFallback: true,
	}
}

func anyActive(records []*domain.Download) bool {
	for _, rec := range records {
		if rec != nil && rec.IsActive {
			return true
		}
	}
	return false
}
