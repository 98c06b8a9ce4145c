package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
)

type ITaskRepository interface {
	Create(ctx context.Context, task *model.Task) error
	FindByID(ctx context.Context, id string) (*model.Task, error)
	FindByRoom(ctx context.Context, roomID string) ([]*model.Task, error)
	FindChildren(ctx context.Context, parentID string) ([]*model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, id string) error
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) ITaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	task.Version = 1
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, translate(err)
	}
	return &task, nil
}

// FindByRoom 返回房间内全部任务（含各层子任务），按创建时间排序
func (r *TaskRepository) FindByRoom(ctx context.Context, roomID string) ([]*model.Task, error) {
	var tasks []*model.Task
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at ASC, id ASC").Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// FindChildren 按 parent_task_id 反查，用于一致性校验
func (r *TaskRepository) FindChildren(ctx context.Context, parentID string) ([]*model.Task, error) {
	var tasks []*model.Task
	err := r.db.WithContext(ctx).Where("parent_task_id = ?", parentID).Order("created_at ASC, id ASC").Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	return updateVersioned(ctx, r.db, task, &task.Version)
}

func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &model.Task{}, id)
}
