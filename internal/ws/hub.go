package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/config"
	"github.com/Gopher0727/TaskRoom/internal/pkg/redis"
	"github.com/Gopher0727/TaskRoom/internal/service"
	"github.com/Gopher0727/TaskRoom/internal/utils"
	"github.com/Gopher0727/TaskRoom/middleware/jwt"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
	"github.com/Gopher0727/TaskRoom/utils/ratelimit"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Deps 是 Hub 依赖的外部协作者；Presence 与 Limiter 可以为空
type Deps struct {
	Verifier  jwt.Verifier
	Gate      service.IAccessGate
	Messages  service.IMessageService
	Directory service.IUserDirectory
	Presence  redis.RedisClient
	Limiter   ratelimit.Limiter
}

// Hub 维护连接与频道订阅，并把提交后的图事件广播给已授权的订阅者。
// 变更类命令按 chat id 串行执行，保证同一聊天的广播顺序与提交顺序一致
type Hub struct {
	cfg      *config.WebsocketConfig
	deps     Deps
	registry *Registry
	pool     *utils.KeyedPool
	logger   *logger.Logger

	// 广播队列，单一 goroutine 按入队顺序投递
	broadcast chan delivery

	mu      sync.Mutex
	clients map[*Client]struct{}

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

func NewHub(cfg *config.WebsocketConfig, deps Deps, l *logger.Logger) *Hub {
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.Unlimited{}
	}
	l = l.Named("hub")
	return &Hub{
		cfg:       cfg,
		deps:      deps,
		registry:  NewRegistry(defaultShards),
		pool:      utils.NewKeyedPool(cfg.CommandWorkers, cfg.CommandQueue, l.Logger),
		logger:    l,
		broadcast: make(chan delivery, cfg.CommandQueue),
		clients:   make(map[*Client]struct{}),
		done:      make(chan struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run 启动命令工作池并投递广播，直到 ctx 取消或 Shutdown
func (h *Hub) Run(ctx context.Context) {
	h.pool.Start()
	for {
		select {
		case d := <-h.broadcast:
			h.deliver(d)
		case <-ctx.Done():
			h.Shutdown()
			return
		case <-h.done:
			return
		}
	}
}

// Shutdown 关闭所有连接并等待在途命令执行完毕，可重复调用
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		// 与 ServeWS 的登记互斥：关闭 done 之后不会再有新连接加入快照之外
		h.mu.Lock()
		close(h.done)
		clients := make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			clients = append(clients, c)
		}
		h.mu.Unlock()

		h.pool.Stop()

		for _, c := range clients {
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), writeWait)
			c.Close()
		}
		h.wg.Wait()
		h.logger.Info("hub stopped", zap.Int("clients", len(clients)))
	})
}

// Publish 实现 service.EventPublisher，在事务提交后被调用
func (h *Hub) Publish(ctx context.Context, ev service.Event) {
	for _, d := range deliveries(ev) {
		h.enqueue(d)
	}
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.broadcast <- d:
	case <-h.done:
	}
}

func (h *Hub) deliver(d delivery) {
	members := h.registry.Members(d.channel)
	if len(members) > 0 {
		payload, err := encodeFrame(d.event, d.data)
		if err != nil {
			h.logger.Error("failed to encode frame", zap.String("event", d.event), zap.Error(err))
			return
		}
		for _, c := range members {
			if !c.enqueue(payload) {
				h.logger.Warn("dropping slow client", zap.String("user_id", c.UserID), zap.String("channel", d.channel))
				go c.Close()
			}
		}
	}
	if len(d.evicts) > 0 {
		for _, c := range h.registry.Members(d.channel) {
			if slices.Contains(d.evicts, c.UserID) {
				h.registry.Unsubscribe(d.channel, c)
			}
		}
	}
	for _, channel := range d.closes {
		h.registry.Close(channel)
	}
}

// ServeWS 升级连接并校验令牌；令牌无效时以 1008 关闭
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return
	}

	identity, err := h.deps.Verifier.VerifyToken(jwt.TokenFromRequest(r))
	if err != nil {
		h.logger.Info("rejecting socket with invalid token", zap.Error(err))
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"))
		conn.Close()
		return
	}

	c := newClient(context.Background(), identity.UserID, conn, h.cfg.SendBuffer)
	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), writeWait)
		c.Close()
		return
	default:
	}
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("client connected", zap.String("user_id", c.UserID))
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		h.disconnect(c)
		h.wg.Done()
	}()

	timeout := time.Duration(h.cfg.ConnectionTimeout) * time.Second
	c.conn.SetReadLimit(h.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.sendError(c, "Malformed frame")
			continue
		}
		h.handle(c, frame)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(time.Duration(h.cfg.HeartbeatInterval) * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
		h.wg.Done()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{}, writeWait)
				return
			}
			if err := c.write(websocket.TextMessage, payload, writeWait); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil, writeWait); err != nil {
				return
			}
		}
	}
}

// disconnect 清理订阅与在线状态，并向最后加入的房间广播 userOffline
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	h.registry.Drop(c)
	c.Close()

	lastRoom, rooms := c.presence()
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if h.deps.Presence != nil {
		for _, roomID := range rooms {
			if _, err := h.deps.Presence.LeavePresence(ctx, roomID, c.UserID); err != nil {
				h.logger.Warn("failed to clear presence", zap.String("room_id", roomID), zap.Error(err))
			}
		}
	}
	if lastRoom != "" {
		h.enqueue(delivery{
			channel: RoomChannel(lastRoom),
			event:   EvtUserOffline,
			data:    presencePayload{UserID: c.UserID, DisplayName: h.displayName(ctx, c.UserID)},
		})
	}
	h.logger.Debug("client disconnected", zap.String("user_id", c.UserID))
}

// send 直接发给单个连接
func (h *Hub) send(c *Client, event string, data any) {
	payload, err := encodeFrame(event, data)
	if err != nil {
		h.logger.Error("failed to encode frame", zap.String("event", event), zap.Error(err))
		return
	}
	if !c.enqueue(payload) {
		go c.Close()
	}
}

func (h *Hub) sendError(c *Client, message string) {
	h.send(c, EvtError, message)
}

func (h *Hub) displayName(ctx context.Context, userID string) string {
	if h.deps.Directory == nil {
		return userID
	}
	name, err := h.deps.Directory.DisplayName(ctx, userID)
	if err != nil {
		return userID
	}
	return name
}

// errorText 把服务层错误翻译为发给客户端的可读文本
func errorText(err error) string {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return "Forbidden"
	case errors.Is(err, service.ErrNotFound):
		return "Not found"
	case errors.Is(err, service.ErrConflict):
		return "Conflicting update, please retry"
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrFileOwned),
		errors.Is(err, service.ErrParentMismatch):
		return err.Error()
	default:
		return "Internal error"
	}
}
