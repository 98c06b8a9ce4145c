package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/TaskRoom/internal/service"
)

type ThreadHandler struct {
	messageService service.IMessageService
}

func NewThreadHandler(messageService service.IMessageService) *ThreadHandler {
	return &ThreadHandler{
		messageService: messageService,
	}
}

// History 分页读取话题回复，limit 最大 100
func (h *ThreadHandler) History(c *gin.Context) {
	var req struct {
		Page  int `form:"page" binding:"required,min=1"`
		Limit int `form:"limit" binding:"required,min=1,max=100"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUser(c)
	if !ok {
		return
	}

	history, err := h.messageService.ThreadHistory(c.Request.Context(), userID, c.Param("id"), req.Page, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}
