package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/TaskRoom/internal/handler"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

// Handlers 路由依赖的全部处理器
type Handlers struct {
	Room      *handler.RoomHandler
	Task      *handler.TaskHandler
	Thread    *handler.ThreadHandler
	File      *handler.FileHandler
	User      *handler.UserHandler
	// WebSocket 在升级之后自行校验令牌
	WebSocket http.HandlerFunc
}

// NewRouter builds the gin engine with global middleware and all routes.
func NewRouter(mode string, m *MiddlewareManager, l *logger.Logger, h Handlers) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}
	r := gin.New()
	r.Use(logger.GinMiddleware(l), m.Recovery(), m.CORS())

	RegisterRoutes(r, m, h)
	return r
}

// RegisterRoutes registers all API routes
func RegisterRoutes(r *gin.Engine, m *MiddlewareManager, h Handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws", gin.WrapF(h.WebSocket))

	protected := r.Group("/api/v1")
	protected.Use(m.JWTAuth(), m.RateLimit())
	{
		users := protected.Group("/users")
		{
			users.GET("/me", h.User.GetProfile)
			users.PUT("/me", h.User.UpdateProfile)
		}

		rooms := protected.Group("/rooms")
		{
			rooms.POST("", h.Room.CreateRoom)
			rooms.GET("/:id", h.Room.GetRoom)
			rooms.POST("/:id/participants", h.Room.AddParticipant)
			rooms.DELETE("/:id", h.Room.DeleteRoom)
		}

		tasks := protected.Group("/tasks")
		{
			tasks.POST("", h.Task.CreateTask)
			tasks.GET("/:id", h.Task.GetTask)
			tasks.PATCH("/:id", h.Task.UpdateTask)
			tasks.DELETE("/:id", h.Task.DeleteTask)
		}

		threads := protected.Group("/threads")
		{
			threads.GET("/:id/history", h.Thread.History)
		}

		files := protected.Group("/files")
		{
			files.POST("", h.File.Upload)
			files.GET("/:id", h.File.Download)
			files.GET("/:id/metadata", h.File.Metadata)
		}
	}
}
