package ws

import (
	"encoding/json"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/service"
)

// Inbound commands.
const (
	CmdJoinRoom      = "joinRoom"
	CmdJoinChat      = "joinChat"
	CmdSendMessage   = "sendMessage"
	CmdSendThread    = "sendThread"
	CmdUpdateMessage = "updateMessage"
	CmdDeleteMessage = "deleteMessage"
	CmdUpdateThread  = "updateThread"
	CmdDeleteThread  = "deleteThread"
)

// Outbound events.
const (
	EvtError            = "error"
	EvtJoinRoom         = "joinRoom"
	EvtJoinedChat       = "joinedChat"
	EvtUserOnline       = "userOnline"
	EvtUserOffline      = "userOffline"
	EvtCreateMessage    = "createMessage"
	EvtNewMessageNotify = "newMessageNotification"
	EvtThreadMessage    = "threadMessage"
	EvtNewThreadNotify  = "newThreadNotification"
	EvtMessageUpdated   = "messageUpdated"
	EvtMessageDeleted   = "messageDeleted"
	EvtThreadUpdated    = "threadUpdated"
	EvtThreadDeleted    = "threadDeleted"
	EvtTaskCreated      = "taskCreated"
	EvtTaskUpdated      = "taskUpdated"
	EvtTaskDeleted      = "taskDeleted"
	EvtRoomDeleted      = "roomDeleted"
	EvtParticipantAdded = "participantAdded"
)

// Frame 客户端与服务端之间的 JSON 信封
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outFrame{Event: event, Data: data})
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type chatPayload struct {
	ChatID string `json:"chatId"`
}

type sendPayload struct {
	ChatID  string               `json:"chatId"`
	Message service.MessageInput `json:"message"`
}

type messageUpdatePayload struct {
	MessageID string                `json:"messageId"`
	Update    service.MessageUpdate `json:"update"`
}

type messageRefPayload struct {
	MessageID string `json:"messageId"`
}

type threadUpdatePayload struct {
	ThreadID string                `json:"threadId"`
	Update   service.MessageUpdate `json:"update"`
}

type threadRefPayload struct {
	ThreadID string `json:"threadId"`
}

type presencePayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type messagePayload struct {
	ChatID  string         `json:"chatId"`
	Message *model.Message `json:"message"`
}

type threadPayload struct {
	ChatID  string         `json:"chatId"`
	Thread  *model.Thread  `json:"thread"`
	Message *model.Message `json:"message,omitempty"`
}

type notificationPayload struct {
	ChatID   string `json:"chatId"`
	TaskID   string `json:"taskId,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
}

type messageDeletedPayload struct {
	ChatID    string `json:"chatId"`
	ThreadID  string `json:"threadId"`
	MessageID string `json:"messageId"`
}

type threadDeletedPayload struct {
	ChatID   string `json:"chatId"`
	ThreadID string `json:"threadId"`
}

type taskPayload struct {
	RoomID string                 `json:"roomId"`
	TaskID string                 `json:"taskId"`
	Task   *model.Task            `json:"task,omitempty"`
	Report *service.CascadeReport `json:"report,omitempty"`
}

type roomDeletedPayload struct {
	RoomID string                 `json:"roomId"`
	Report *service.CascadeReport `json:"report,omitempty"`
}

// delivery 一条待投递到频道的出站消息
type delivery struct {
	channel string
	event   string
	data    any
	// closes 投递完成后需要关闭的频道（实体已被删除）
	closes  []string
	// evicts 投递完成后移出该频道的用户（失去访问权）
	evicts  []string
}

// deliveries maps a committed graph event to the frames it fans out.
func deliveries(ev service.Event) []delivery {
	chat := ChatChannel(ev.ChatID)
	room := RoomChannel(ev.RoomID)

	switch ev.Type {
	case service.EventMessageCreated:
		return []delivery{
			{channel: chat, event: EvtCreateMessage, data: messagePayload{ChatID: ev.ChatID, Message: ev.Message}},
			{channel: room, event: EvtNewMessageNotify, data: notificationPayload{ChatID: ev.ChatID, TaskID: ev.TaskID, ThreadID: ev.ThreadID}},
		}
	case service.EventThreadCreated:
		return []delivery{
			{channel: chat, event: EvtThreadMessage, data: threadPayload{ChatID: ev.ChatID, Thread: ev.Thread, Message: ev.Message}},
			{channel: room, event: EvtNewThreadNotify, data: notificationPayload{ChatID: ev.ChatID, TaskID: ev.TaskID}},
		}
	case service.EventMessageUpdated:
		return []delivery{{channel: chat, event: EvtMessageUpdated, data: messagePayload{ChatID: ev.ChatID, Message: ev.Message}}}
	case service.EventMessageDeleted:
		return []delivery{{channel: chat, event: EvtMessageDeleted, data: messageDeletedPayload{
			ChatID:    ev.ChatID,
			ThreadID:  ev.ThreadID,
			MessageID: ev.Message.ID,
		}}}
	case service.EventThreadUpdated:
		return []delivery{{channel: chat, event: EvtThreadUpdated, data: threadPayload{ChatID: ev.ChatID, Thread: ev.Thread, Message: ev.Message}}}
	case service.EventThreadDeleted:
		return []delivery{{channel: chat, event: EvtThreadDeleted, data: threadDeletedPayload{ChatID: ev.ChatID, ThreadID: ev.ThreadID}}}
	case service.EventTaskCreated:
		return []delivery{{channel: room, event: EvtTaskCreated, data: taskPayload{RoomID: ev.RoomID, TaskID: ev.TaskID, Task: ev.Task}}}
	case service.EventTaskUpdated:
		data := taskPayload{RoomID: ev.RoomID, TaskID: ev.TaskID, Task: ev.Task, Report: ev.Report}
		return []delivery{
			{channel: chat, event: EvtTaskUpdated, data: data, evicts: ev.Removed},
			{channel: room, event: EvtTaskUpdated, data: data},
		}
	case service.EventTaskDeleted:
		data := taskPayload{RoomID: ev.RoomID, TaskID: ev.TaskID, Report: ev.Report}
		return []delivery{
			{channel: chat, event: EvtTaskDeleted, data: data},
			{channel: room, event: EvtTaskDeleted, data: data, closes: chatChannels(ev.Report)},
		}
	case service.EventRoomDeleted:
		return []delivery{{
			channel: room,
			event:   EvtRoomDeleted,
			data:    roomDeletedPayload{RoomID: ev.RoomID, Report: ev.Report},
			closes:  append(chatChannels(ev.Report), room),
		}}
	case service.EventParticipantAdded:
		return []delivery{{channel: room, event: EvtParticipantAdded, data: ev.Room}}
	default:
		return nil
	}
}

func chatChannels(r *service.CascadeReport) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Chats))
	for _, id := range r.Chats {
		out = append(out, ChatChannel(id))
	}
	return out
}
