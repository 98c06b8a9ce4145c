package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
)

type IChatRepository interface {
	Create(ctx context.Context, chat *model.Chat) error
	FindByID(ctx context.Context, id string) (*model.Chat, error)
	Update(ctx context.Context, chat *model.Chat) error
	Delete(ctx context.Context, id string) error
}

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) IChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(ctx context.Context, chat *model.Chat) error {
	chat.Version = 1
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *ChatRepository) FindByID(ctx context.Context, id string) (*model.Chat, error) {
	var chat model.Chat
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&chat).Error; err != nil {
		return nil, translate(err)
	}
	return &chat, nil
}

func (r *ChatRepository) Update(ctx context.Context, chat *model.Chat) error {
	return updateVersioned(ctx, r.db, chat, &chat.Version)
}

func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &model.Chat{}, id)
}

type IThreadRepository interface {
	Create(ctx context.Context, thread *model.Thread) error
	FindByID(ctx context.Context, id string) (*model.Thread, error)
	FindByChat(ctx context.Context, chatID string) ([]*model.Thread, error)
	Update(ctx context.Context, thread *model.Thread) error
	Delete(ctx context.Context, id string) error
}

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) IThreadRepository {
	return &ThreadRepository{db: db}
}

func (r *ThreadRepository) Create(ctx context.Context, thread *model.Thread) error {
	thread.Version = 1
	return r.db.WithContext(ctx).Create(thread).Error
}

func (r *ThreadRepository) FindByID(ctx context.Context, id string) (*model.Thread, error) {
	var thread model.Thread
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&thread).Error; err != nil {
		return nil, translate(err)
	}
	return &thread, nil
}

func (r *ThreadRepository) FindByChat(ctx context.Context, chatID string) ([]*model.Thread, error) {
	var threads []*model.Thread
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("created_at ASC, id ASC").Find(&threads).Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

func (r *ThreadRepository) Update(ctx context.Context, thread *model.Thread) error {
	return updateVersioned(ctx, r.db, thread, &thread.Version)
}

func (r *ThreadRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &model.Thread{}, id)
}
