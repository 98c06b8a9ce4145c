package service

import (
	"context"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/repository"
)

// IAccessGate answers whether a user may act on an entity. Chat, thread and
// message access always resolves to the owning task's participant set.
type IAccessGate interface {
	IsRoomParticipant(ctx context.Context, userID, roomID string) (bool, error)
	IsTaskParticipant(ctx context.Context, userID, taskID string) (bool, error)
	ChatOwnerTask(ctx context.Context, chatID string) (string, error)
	ThreadOwnerChat(ctx context.Context, threadID string) (string, error)
	AuthorizeRoom(ctx context.Context, userID, roomID string) (*model.Room, error)
	AuthorizeTask(ctx context.Context, userID, taskID string) (*model.Task, error)
	AuthorizeChat(ctx context.Context, userID, chatID string) (*model.Task, error)
	AuthorizeThread(ctx context.Context, userID, threadID string) (*model.Thread, *model.Task, error)
	AuthorizeMessage(ctx context.Context, userID, messageID string) (*model.Message, *model.Thread, *model.Task, error)
}

// AccessGate reads through the transaction scope in ctx when there is one.
type AccessGate struct {
	store *repository.Store
}

func NewAccessGate(store *repository.Store) *AccessGate {
	return &AccessGate{store: store}
}

func (g *AccessGate) IsRoomParticipant(ctx context.Context, userID, roomID string) (bool, error) {
	room, err := g.store.Current(ctx).Rooms().FindByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.HasParticipant(userID), nil
}

func (g *AccessGate) IsTaskParticipant(ctx context.Context, userID, taskID string) (bool, error) {
	task, err := g.store.Current(ctx).Tasks().FindByID(ctx, taskID)
	if err != nil {
		return false, err
	}
	return task.HasParticipant(userID), nil
}

// ChatOwnerTask 返回聊天所属任务；尚未回填任务引用的聊天视为不存在
func (g *AccessGate) ChatOwnerTask(ctx context.Context, chatID string) (string, error) {
	chat, err := g.store.Current(ctx).Chats().FindByID(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat.Task() == "" {
		return "", ErrNotFound
	}
	return chat.Task(), nil
}

func (g *AccessGate) ThreadOwnerChat(ctx context.Context, threadID string) (string, error) {
	thread, err := g.store.Current(ctx).Threads().FindByID(ctx, threadID)
	if err != nil {
		return "", err
	}
	return thread.ChatID, nil
}

func (g *AccessGate) AuthorizeRoom(ctx context.Context, userID, roomID string) (*model.Room, error) {
	room, err := g.store.Current(ctx).Rooms().FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return room, nil
}

func (g *AccessGate) AuthorizeTask(ctx context.Context, userID, taskID string) (*model.Task, error) {
	task, err := g.store.Current(ctx).Tasks().FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	return task, nil
}

// AuthorizeChat walks Chat -> Task and returns the owning task.
func (g *AccessGate) AuthorizeChat(ctx context.Context, userID, chatID string) (*model.Task, error) {
	taskID, err := g.ChatOwnerTask(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return g.AuthorizeTask(ctx, userID, taskID)
}

func (g *AccessGate) AuthorizeThread(ctx context.Context, userID, threadID string) (*model.Thread, *model.Task, error) {
	thread, err := g.store.Current(ctx).Threads().FindByID(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	task, err := g.AuthorizeChat(ctx, userID, thread.ChatID)
	if err != nil {
		return nil, nil, err
	}
	return thread, task, nil
}

func (g *AccessGate) AuthorizeMessage(ctx context.Context, userID, messageID string) (*model.Message, *model.Thread, *model.Task, error) {
	msg, err := g.store.Current(ctx).Messages().FindByID(ctx, messageID)
	if err != nil {
		return nil, nil, nil, err
	}
	thread, task, err := g.AuthorizeThread(ctx, userID, msg.ThreadID)
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, thread, task, nil
}
