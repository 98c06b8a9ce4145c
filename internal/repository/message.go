package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
)

type IMessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.Message, error)
	FindByThread(ctx context.Context, threadID string) ([]*model.Message, error)
	Update(ctx context.Context, message *model.Message) error
	Delete(ctx context.Context, id string) error
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

// FindByIDs 按 ids 顺序返回消息；已不存在的 id 被跳过
func (r *MessageRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var messages []*model.Message
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&messages).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Message, len(messages))
	for _, m := range messages {
		byID[m.ID] = m
	}
	out := make([]*model.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *MessageRepository) FindByThread(ctx context.Context, threadID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("created_at ASC, id ASC").Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) Update(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Save(message).Error
}

func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &model.Message{}, id)
}
