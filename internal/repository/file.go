package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Gopher0727/TaskRoom/internal/model"
)

type IFileRepository interface {
	Create(ctx context.Context, file *model.File) error
	FindByID(ctx context.Context, id string) (*model.File, error)
	FindByIDs(ctx context.Context, ids []string) ([]*model.File, error)
	Update(ctx context.Context, file *model.File) error
	Delete(ctx context.Context, id string) error
}

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) IFileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, file *model.File) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *FileRepository) FindByID(ctx context.Context, id string) (*model.File, error) {
	var file model.File
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error; err != nil {
		return nil, translate(err)
	}
	return &file, nil
}

// FindByIDs 返回结果顺序与 ids 一致；任一不存在时返回 ErrNotFound
func (r *FileRepository) FindByIDs(ctx context.Context, ids []string) ([]*model.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []*model.File
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&files).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]*model.File, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	out := make([]*model.File, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, f)
	}
	return out, nil
}

func (r *FileRepository) Update(ctx context.Context, file *model.File) error {
	return r.db.WithContext(ctx).Save(file).Error
}

func (r *FileRepository) Delete(ctx context.Context, id string) error {
	return deleteByID(ctx, r.db, &model.File{}, id)
}
