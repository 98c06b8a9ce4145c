package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/handler"
	"github.com/Gopher0727/TaskRoom/middleware/jwt"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
	"github.com/Gopher0727/TaskRoom/utils/ratelimit"
)

type MiddlewareManager struct {
	verifier    jwt.Verifier
	rateLimiter ratelimit.Limiter
	logger      *logger.Logger
}

// NewMiddlewareManager 创建中间件管理器；limiter 为空时不限流
func NewMiddlewareManager(verifier jwt.Verifier, limiter ratelimit.Limiter, l *logger.Logger) *MiddlewareManager {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &MiddlewareManager{
		verifier:    verifier,
		rateLimiter: limiter,
		logger:      l.Named("http"),
	}
}

// JWTAuth 校验 Bearer 令牌，并把身份写入 gin.Context 与请求 context
func (m *MiddlewareManager) JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := m.verifier.VerifyToken(jwt.TokenFromRequest(c.Request))
		if err != nil {
			m.logger.For(c.Request.Context()).Warn("token validation failed",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)

			message := "invalid token"
			switch {
			case errors.Is(err, jwt.ErrMissingToken):
				message = "authorization header required"
			case errors.Is(err, jwt.ErrExpiredToken):
				message = "token has expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		c.Set(handler.UserIDKey, identity.UserID)
		c.Set(handler.UserNameKey, identity.UserName)
		c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), identity.UserID))

		c.Next()
	}
}

// RateLimit keys on the authenticated user, falling back to the client IP.
func (m *MiddlewareManager) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "http:ip:" + c.ClientIP()
		if userID := c.GetString(handler.UserIDKey); userID != "" {
			key = "http:user:" + userID
		}

		if !m.rateLimiter.Allow(c.Request.Context(), key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}

func (m *MiddlewareManager) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, "+logger.TraceHeader)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (m *MiddlewareManager) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				m.logger.For(c.Request.Context()).Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()

		c.Next()
	}
}
