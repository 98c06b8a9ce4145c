package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/TaskRoom/internal/service"
)

// 认证中间件写入 gin.Context 的键
const (
	UserIDKey   = "user_id"
	UserNameKey = "username"
)

func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return userID, true
}

// respondError 把服务层错误映射为 HTTP 状态码；未识别的错误按 500 处理并交给日志中间件记录
func respondError(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, service.ErrNotFound):
		status, message = http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrForbidden):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrConflict):
		status, message = http.StatusConflict, "conflicting update, please retry"
	case errors.Is(err, service.ErrFileTooLarge):
		status, message = http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, service.ErrUnsupportedFile):
		status, message = http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrParentMismatch),
		errors.Is(err, service.ErrFileOwned):
		status, message = http.StatusBadRequest, err.Error()
	}
	if status == http.StatusInternalServerError {
		c.Error(err)
	}
	c.JSON(status, gin.H{"error": message})
}
