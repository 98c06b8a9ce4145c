package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/service"
	"github.com/Gopher0727/TaskRoom/internal/utils"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

// handle 分发一条客户端命令。加入类命令在读协程内直接处理；
// 变更类命令解析出所属聊天后投递到按 chat id 分槽的工作池
func (h *Hub) handle(c *Client, frame Frame) {
	ctx := logger.WithActor(logger.WithTraceID(context.Background(), logger.NewTraceID()), c.UserID)

	switch frame.Event {
	case CmdJoinRoom:
		var p roomPayload
		if !h.decode(c, frame, &p) {
			return
		}
		h.joinRoom(ctx, c, p.RoomID)
	case CmdJoinChat:
		var p chatPayload
		if !h.decode(c, frame, &p) {
			return
		}
		h.joinChat(ctx, c, p.ChatID)
	case CmdSendMessage, CmdSendThread, CmdUpdateMessage, CmdDeleteMessage, CmdUpdateThread, CmdDeleteThread:
		if !h.deps.Limiter.Allow(ctx, "ws:"+c.UserID) {
			h.sendError(c, "Rate limit exceeded")
			return
		}
		h.mutate(ctx, c, frame)
	default:
		h.sendError(c, "Unknown event "+frame.Event)
	}
}

func (h *Hub) decode(c *Client, frame Frame, v any) bool {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		h.sendError(c, "Malformed "+frame.Event+" payload")
		return false
	}
	return true
}

func (h *Hub) joinRoom(ctx context.Context, c *Client, roomID string) {
	if !utils.ValidateID(roomID) {
		h.sendError(c, "Invalid room id")
		return
	}
	if _, err := h.deps.Gate.AuthorizeRoom(ctx, c.UserID, roomID); err != nil {
		h.sendError(c, errorText(err))
		return
	}

	h.registry.Subscribe(RoomChannel(roomID), c)
	if c.joinedRoom(roomID) && h.deps.Presence != nil {
		if _, err := h.deps.Presence.JoinPresence(ctx, roomID, c.UserID); err != nil {
			h.logger.For(ctx).Warn("failed to record presence", zap.String("room_id", roomID), zap.Error(err))
		}
	}

	h.enqueue(delivery{
		channel: RoomChannel(roomID),
		event:   EvtUserOnline,
		data:    presencePayload{UserID: c.UserID, DisplayName: h.displayName(ctx, c.UserID)},
	})
	h.send(c, EvtJoinRoom, roomPayload{RoomID: roomID})
}

func (h *Hub) joinChat(ctx context.Context, c *Client, chatID string) {
	if !utils.ValidateID(chatID) {
		h.sendError(c, "Invalid chat id")
		return
	}
	if _, err := h.deps.Gate.AuthorizeChat(ctx, c.UserID, chatID); err != nil {
		h.sendError(c, errorText(err))
		return
	}
	h.registry.Subscribe(ChatChannel(chatID), c)
	h.send(c, EvtJoinedChat, chatPayload{ChatID: chatID})
}

// mutate decodes a mutation command, resolves the chat it touches and runs
// it on that chat's worker.
func (h *Hub) mutate(ctx context.Context, c *Client, frame Frame) {
	var (
		chatID string
		run    func() error
		err    error
	)
	msgs := h.deps.Messages

	switch frame.Event {
	case CmdSendMessage, CmdSendThread:
		var p sendPayload
		if !h.decode(c, frame, &p) {
			return
		}
		chatID = p.ChatID
		if frame.Event == CmdSendMessage {
			run = func() error { _, err := msgs.SendMessage(ctx, c.UserID, p.ChatID, p.Message); return err }
		} else {
			run = func() error { _, _, err := msgs.CreateThread(ctx, c.UserID, p.ChatID, p.Message); return err }
		}
	case CmdUpdateMessage:
		var p messageUpdatePayload
		if !h.decode(c, frame, &p) {
			return
		}
		chatID, err = h.messageChat(ctx, c.UserID, p.MessageID)
		run = func() error { _, err := msgs.UpdateMessage(ctx, c.UserID, p.MessageID, p.Update); return err }
	case CmdDeleteMessage:
		var p messageRefPayload
		if !h.decode(c, frame, &p) {
			return
		}
		chatID, err = h.messageChat(ctx, c.UserID, p.MessageID)
		run = func() error { _, err := msgs.DeleteMessage(ctx, c.UserID, p.MessageID); return err }
	case CmdUpdateThread:
		var p threadUpdatePayload
		if !h.decode(c, frame, &p) {
			return
		}
		chatID, err = h.threadChat(ctx, p.ThreadID)
		run = func() error { _, _, err := msgs.UpdateThread(ctx, c.UserID, p.ThreadID, p.Update); return err }
	case CmdDeleteThread:
		var p threadRefPayload
		if !h.decode(c, frame, &p) {
			return
		}
		chatID, err = h.threadChat(ctx, p.ThreadID)
		run = func() error { _, err := msgs.DeleteThread(ctx, c.UserID, p.ThreadID); return err }
	}
	if err == nil && !utils.ValidateID(chatID) {
		err = errInvalidTarget
	}
	if err != nil {
		h.sendError(c, errorText(err))
		return
	}

	job := func() {
		if err := run(); err != nil {
			h.logger.For(ctx).Debug("command failed", zap.String("event", frame.Event), zap.String("chat_id", chatID), zap.Error(err))
			h.sendError(c, errorText(err))
		}
	}
	if err := h.pool.Submit(chatID, job); err != nil {
		h.sendError(c, "Server is shutting down")
	}
}

var errInvalidTarget = fmt.Errorf("%w: invalid target id", service.ErrInvalidInput)

func (h *Hub) messageChat(ctx context.Context, userID, messageID string) (string, error) {
	if !utils.ValidateID(messageID) {
		return "", errInvalidTarget
	}
	_, thread, _, err := h.deps.Gate.AuthorizeMessage(ctx, userID, messageID)
	if err != nil {
		return "", err
	}
	return thread.ChatID, nil
}

func (h *Hub) threadChat(ctx context.Context, threadID string) (string, error) {
	if !utils.ValidateID(threadID) {
		return "", errInvalidTarget
	}
	return h.deps.Gate.ThreadOwnerChat(ctx, threadID)
}
