package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lancache-dash/lancache-dash-go/internal/domain"
)

// 推送消息类型
const (
	MessageTypeSpeed    = "speed"    // 实时速度快照
	MessageTypeDataset  = "dataset"  // 记录集变化, 客户端应重新拉取视图
	MessageTypeSettings = "settings" // 设置变化
)

// Message 推送消息
type Message struct {
	Type      string                `json:"type"`
	Snapshot  *domain.SpeedSnapshot `json:"snapshot,omitempty"`
	Revision  uint64                `json:"revision,omitempty"`
	Settings  *domain.Settings      `json:"settings,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// Hub WebSocket 推送中心
type Hub struct {
	logger      *logrus.Logger
	upgrader    websocket.Upgrader
	clients     map[string]*websocket.Conn
	clientMutex sync.RWMutex
	broadcast   chan Message
}

// NewHub 创建推送中心
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有来源（生产环境需要限制）
			},
		},
		clients:   make(map[string]*websocket.Conn),
		broadcast: make(chan Message, 100),
	}
}

// Start 启动广播服务
func (h *Hub) Start() {
	go h.runBroadcaster()
}

// runBroadcaster 运行广播器
func (h *Hub) runBroadcaster() {
	for {
		msg := <-h.broadcast

		h.clientMutex.RLock()
		var dead []string
		for clientID, client := range h.clients {
			if err := client.WriteJSON(msg); err != nil {
				h.logger.WithError(err).Warn("Failed to write to WebSocket client")
				client.Close()
				dead = append(dead, clientID)
			}
		}
		h.clientMutex.RUnlock()

		if len(dead) > 0 {
			h.clientMutex.Lock()
			for _, clientID := range dead {
				delete(h.clients, clientID)
			}
			h.clientMutex.Unlock()
		}
	}
}

// HandleWebSocket 处理 WebSocket 连接
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close()

	clientID := uuid.New().String()

	h.clientMutex.Lock()
	h.clients[clientID] = conn
	h.clientMutex.Unlock()

	h.logger.WithField("client_id", clientID).Info("WebSocket client connected")

	// 保持连接, 客户端不需要发消息
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WithError(err).Warn("WebSocket error")
			}
			break
		}
	}

	h.clientMutex.Lock()
	delete(h.clients, clientID)
	h.clientMutex.Unlock()

	h.logger.WithField("client_id", clientID).Info("WebSocket client disconnected")
}

// BroadcastSnapshot 推送一份速度快照
func (h *Hub) BroadcastSnapshot(snapshot *domain.SpeedSnapshot) {
	msg := Message{
		Type:      MessageTypeSpeed,
		Snapshot:  snapshot,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel is full, dropping snapshot")
	}
}

// BroadcastDatasetChanged 通知记录集版本变化
func (h *Hub) BroadcastDatasetChanged(revision uint64) {
	msg := Message{
		Type:      MessageTypeDataset,
		Revision:  revision,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
		h.logger.WithField("revision", revision).Debug("Dataset change broadcasted")
	default:
		h.logger.Warn("Broadcast channel is full, dropping dataset notification")
	}
}

// BroadcastSettings 推送设置变化
func (h *Hub) BroadcastSettings(settings domain.Settings) {
	msg := Message{
		Type:      MessageTypeSettings,
		Settings:  &settings,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
	default:
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.clientMutex.RLock()
	defer h.clientMutex.RUnlock()
	return len(h.clients)
}
