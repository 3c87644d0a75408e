package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"DeckFM/core/playback"
	"DeckFM/logger"

	"github.com/gorilla/websocket"
)

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// 本地桌面前端，不做来源校验
	CheckOrigin: func(r *http.Request) bool { return true },
}

// eventMessage 推送给前端的事件载荷
type eventMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// eventClient 单个 WebSocket 订阅连接
type eventClient struct {
	hub  *EventHub
	conn *websocket.Conn
	send chan []byte
}

// EventHub 把播放引擎的事件流扇出给所有 WebSocket 客户端。
type EventHub struct {
	engine *playback.Engine

	clients    map[*eventClient]bool
	register   chan *eventClient
	unregister chan *eventClient
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
}

// NewEventHub 创建事件 Hub
func NewEventHub(engine *playback.Engine) *EventHub {
	return &EventHub{
		engine:     engine,
		clients:    make(map[*eventClient]bool),
		register:   make(chan *eventClient),
		unregister: make(chan *eventClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环，订阅引擎事件并转发。
func (h *EventHub) Run() {
	events, unsubscribe := h.engine.Subscribe()
	defer unsubscribe()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Debug("event subscriber connected", logger.Int("total", h.ClientCount()))

		case client := <-h.unregister:
			h.removeClient(client)

		case event, ok := <-events:
			if !ok {
				return
			}
			h.publish(event)

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *EventHub) Stop() {
	close(h.done)
}

// ClientCount 当前连接数
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *EventHub) publish(event playback.Event) {
	msg := eventMessage{
		Type:      event.Type,
		Payload:   event.Payload,
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("failed to marshal playback event", logger.ErrorField(err))
		return
	}
	h.fanOut(data)
}

func (h *EventHub) fanOut(data []byte) {
	h.mu.RLock()
	clientList := make([]*eventClient, 0, len(h.clients))
	for client := range h.clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	for _, client := range clientList {
		select {
		case client.send <- data:
		default:
			// 发送缓冲区满，踢掉慢客户端
			h.removeClient(client)
		}
	}
}

func (h *EventHub) removeClient(client *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *EventHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*eventClient]bool)
}

// EventsHandler 升级到 WebSocket 并推送播放事件。
// GET /ws/events
func (h *APIHandler) EventsHandler(hub *EventHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := eventUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", logger.ErrorField(err))
			return
		}

		client := &eventClient{
			hub:  hub,
			conn: conn,
			send: make(chan []byte, 64),
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// readPump 只消费控制帧，前端不经 WebSocket 下发命令。
func (c *eventClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read error", logger.ErrorField(err))
			}
			return
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
