package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/pkg/redis"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

// IUserDirectory resolves user ids against the external user directory.
type IUserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	Missing(ctx context.Context, userIDs []string) ([]string, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// UserDirectory reads the users table, caching display names in Redis when a
// cache is configured. Cache failures fall back to the database.
type UserDirectory struct {
	store  *repository.Store
	cache  redis.RedisClient
	ttl    time.Duration
	logger *logger.Logger
}

func NewUserDirectory(store *repository.Store, cache redis.RedisClient, ttl time.Duration, l *logger.Logger) *UserDirectory {
	return &UserDirectory{store: store, cache: cache, ttl: ttl, logger: l.Named("directory")}
}

func (d *UserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	missing, err := d.Missing(ctx, []string{userID})
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

func (d *UserDirectory) Missing(ctx context.Context, userIDs []string) ([]string, error) {
	return d.store.Current(ctx).Users().Missing(ctx, userIDs)
}

// DisplayName returns the user's display name, or the id itself for users
// unknown to the directory.
func (d *UserDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if d.cache != nil {
		name, ok, err := d.cache.CachedDisplayName(ctx, userID)
		if err != nil {
			d.logger.For(ctx).Warn("display name cache read failed", zap.String("user_id", userID), zap.Error(err))
		} else if ok {
			return name, nil
		}
	}

	user, err := d.store.Current(ctx).Users().FindByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return userID, nil
	}
	if err != nil {
		return "", err
	}

	name := user.Name()
	if d.cache != nil {
		if err := d.cache.CacheDisplayName(ctx, userID, name, d.ttl); err != nil {
			d.logger.For(ctx).Warn("display name cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return name, nil
}

// Profile returns the directory entry of userID.
func (d *UserDirectory) Profile(ctx context.Context, userID string) (*model.User, error) {
	return d.store.Current(ctx).Users().FindByID(ctx, userID)
}

// Register adds or refreshes a directory entry and drops its cached name.
func (d *UserDirectory) Register(ctx context.Context, user *model.User) error {
	err := d.store.Current(ctx).DB().WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "avatar_url", "updated_at"}),
	}).Create(user).Error
	if err != nil {
		return err
	}
	if d.cache != nil {
		return d.cache.InvalidateUser(ctx, user.ID)
	}
	return nil
}
