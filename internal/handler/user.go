package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/service"
)

// UserProfiles 用户目录的读写端
type UserProfiles interface {
	Profile(ctx context.Context, userID string) (*model.User, error)
	Register(ctx context.Context, user *model.User) error
}

type UserHandler struct {
	profiles UserProfiles
}

func NewUserHandler(profiles UserProfiles) *UserHandler {
	return &UserHandler{
		profiles: profiles,
	}
}

// GetProfile 返回当前用户；尚未登记资料时按令牌中的身份返回
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.profiles.Profile(c.Request.Context(), userID)
	if errors.Is(err, service.ErrNotFound) {
		user = &model.User{ID: userID, UserName: c.GetString(UserNameKey)}
		if user.UserName == "" {
			user.UserName = userID
		}
	} else if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile 把令牌中的用户登记到目录，并更新显示名与头像
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		DisplayName string `json:"display_name" binding:"max=255"`
		AvatarURL   string `json:"avatar_url" binding:"omitempty,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user := &model.User{
		ID:          userID,
		UserName:    c.GetString(UserNameKey),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}
	if user.UserName == "" {
		user.UserName = userID
	}
	if err := h.profiles.Register(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, user)
}
