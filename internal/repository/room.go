package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
)

type IRoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	FindByID(ctx context.Context, id string) (*model.Room, error)
	Update(ctx context.Context, room *model.Room) error
	Delete(ctx context.Context, id string) error
}

type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(db *gorm.DB) IRoomRepository {
	return &RoomRepository{db: db}
}

func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	room.Version = 1
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *RoomRepository) FindByID(ctx context.Context, id string) (*model.Room, error) {
	var room model.Room
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error; err != nil {
		return nil, translate(err)
	}
	return &room, nil
}

// Update 写回整行，版本不匹配时返回 ErrConflict
func (r *RoomRepository) Update(ctx context.Context, room *model.Room) error {
	return updateVersioned(ctx, r.db, room, &room.Version)
}

func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &model.Room{}, id)
}
