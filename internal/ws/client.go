package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client 代表一个已认证的 WebSocket 连接
type Client struct {
	// 绑定的用户 ID，握手时由令牌确定
	UserID string

	conn *websocket.Conn

	// 出站消息缓冲，写满视为慢客户端
	send chan []byte

	// 最近一次 joinRoom 的房间，断开时向其广播 userOffline
	lastRoom string

	// 已登记在线状态的房间
	rooms map[string]struct{}

	roomMu sync.Mutex

	// 保护对底层连接的并发写
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex
}

func newClient(ctx context.Context, userID string, conn *websocket.Conn, buffer int) *Client {
	clientCtx, cancel := context.WithCancel(ctx)
	return &Client{
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, buffer),
		rooms:  make(map[string]struct{}),
		ctx:    clientCtx,
		cancel: cancel,
	}
}

// enqueue 非阻塞投递；缓冲已满或连接已关闭时返回 false
func (c *Client) enqueue(payload []byte) bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) write(messageType int, data []byte, wait time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return websocket.ErrCloseSent
	}
	c.conn.SetWriteDeadline(time.Now().Add(wait))
	return c.conn.WriteMessage(messageType, data)
}

// joinedRoom 记录在线房间，返回该连接是否首次加入
func (c *Client) joinedRoom(roomID string) bool {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()

	c.lastRoom = roomID
	if _, ok := c.rooms[roomID]; ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	return true
}

// presence 返回最后加入的房间与全部在线房间
func (c *Client) presence() (string, []string) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return c.lastRoom, rooms
}

// Close 幂等，关闭发送通道与底层连接
func (c *Client) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	close(c.send)
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()

	return c.closed
}

func (c *Client) Context() context.Context {
	return c.ctx
}
