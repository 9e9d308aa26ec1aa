package speech

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// client 包装一条浏览器连接，写操作串行化。
type client struct {
	sessionID string
	conn      *websocket.Conn

	mu sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *client) close() {
	_ = c.conn.Close()
}

// Hub WebSocket连接管理器：每个会话只保留一条活动连接。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub 创建连接管理器
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// add 登记连接，同一会话的旧连接会被关闭。
func (h *Hub) add(c *client) {
	h.mu.Lock()
	old, exists := h.clients[c.sessionID]
	h.clients[c.sessionID] = c
	h.mu.Unlock()

	if exists && old != c {
		old.close()
	}
}

// remove 仅在登记的仍是 c 时才移除，避免误删替换后的新连接。
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.sessionID]; ok && current == c {
		delete(h.clients, c.sessionID)
	}
}

// Connected reports whether a socket is attached to the session.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// Count 返回活动连接数。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID, c := range h.clients {
		c.close()
		delete(h.clients, sessionID)
	}
}
