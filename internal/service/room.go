package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/internal/utils"
	logger "github.com/Gopher0727/TaskRoom/middleware/log"
)

type CreateRoomInput struct {
	Name         string   `json:"name" binding:"required"`
	Participants []string `json:"participants"`
}

type IRoomService interface {
	CreateRoom(ctx context.Context, actor string, in CreateRoomInput) (*model.Room, error)
	AddParticipant(ctx context.Context, actor, roomID, userID string) (*model.Room, error)
	GetRoom(ctx context.Context, actor, roomID string) (*model.Room, error)
	DeleteRoom(ctx context.Context, actor, roomID string) (*CascadeReport, error)
}

type RoomService struct {
	store     *repository.Store
	gate      IAccessGate
	cascade   *CascadeCoordinator
	directory IUserDirectory
	publisher EventPublisher
	logger    *logger.Logger
}

func NewRoomService(store *repository.Store, gate IAccessGate, cascade *CascadeCoordinator,
	directory IUserDirectory, publisher EventPublisher, l *logger.Logger) *RoomService {
	return &RoomService{
		store:     store,
		gate:      gate,
		cascade:   cascade,
		directory: directory,
		publisher: publisher,
		logger:    l.Named("rooms"),
	}
}

// CreateRoom 创建房间，创建者成为主持人并始终在参与者中
func (s *RoomService) CreateRoom(ctx context.Context, actor string, in CreateRoomInput) (*model.Room, error) {
	if !utils.ValidateName(in.Name) {
		return nil, invalid("room name must be 1-255 characters")
	}
	participants := model.Dedup(append([]string{actor}, in.Participants...))
	if !utils.ValidateIDs(participants) {
		return nil, invalid("malformed participant id")
	}
	if err := requireUsers(ctx, s.directory, actor, participants); err != nil {
		return nil, err
	}

	room := &model.Room{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Moderator:    actor,
		Participants: participants,
		Tasks:        []string{},
	}
	err := s.store.WithTransaction(ctx, func(ctx context.Context, sc *repository.Scope) error {
		if err := sc.Rooms().Create(ctx, room); err != nil {
			return err
		}
		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventRoomCreated,
				RoomID:     room.ID,
				Actor:      actor,
				Room:       room,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.For(ctx).Info("room created", zap.String("room_id", room.ID), zap.Int("participants", len(participants)))
	return room, nil
}

// AddParticipant 仅主持人可以邀请；重复添加不会产生重复项
func (s *RoomService) AddParticipant(ctx context.Context, actor, roomID, userID string) (*model.Room, error) {
	if !utils.ValidateID(userID) {
		return nil, invalid("malformed user id")
	}
	if err := requireUsers(ctx, s.directory, actor, []string{userID}); err != nil {
		return nil, err
	}

	var room *model.Room
	err := s.store.WithTransaction(ctx, func(ctx context.Context, sc *repository.Scope) error {
		var err error
		if room, err = s.moderatedRoom(ctx, actor, roomID); err != nil {
			return err
		}
		if room.HasParticipant(userID) {
			return nil
		}
		room.Participants = model.AddToSet(room.Participants, userID)
		if err := sc.Rooms().Update(ctx, room); err != nil {
			return err
		}
		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventParticipantAdded,
				RoomID:     room.ID,
				Actor:      actor,
				Room:       room,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *RoomService) GetRoom(ctx context.Context, actor, roomID string) (*model.Room, error) {
	return s.gate.AuthorizeRoom(ctx, actor, roomID)
}

// DeleteRoom removes the room and every task in it. It touches every chat of
// the room, so it waits for all in-flight chat publications.
func (s *RoomService) DeleteRoom(ctx context.Context, actor, roomID string) (*CascadeReport, error) {
	var report *CascadeReport
	err := s.store.WithSerializedTransaction(ctx, func(ctx context.Context, sc *repository.Scope) error {
		if _, err := s.moderatedRoom(ctx, actor, roomID); err != nil {
			return err
		}
		var err error
		if report, err = s.cascade.DeleteRoom(ctx, sc, roomID); err != nil {
			return err
		}
		sc.AfterCommit(func() {
			s.publisher.Publish(ctx, Event{
				Type:       EventRoomDeleted,
				RoomID:     roomID,
				Actor:      actor,
				Report:     report,
				OccurredAt: time.Now(),
			})
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func (s *RoomService) moderatedRoom(ctx context.Context, actor, roomID string) (*model.Room, error) {
	room, err := s.gate.AuthorizeRoom(ctx, actor, roomID)
	if err != nil {
		return nil, err
	}
	if room.Moderator != actor {
		return nil, ErrForbidden
	}
	return room, nil
}

// requireUsers 检查 ids 均已登记；actor 已由令牌校验，不要求预先登记
func requireUsers(ctx context.Context, directory IUserDirectory, actor string, ids []string) error {
	others := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != actor {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return nil
	}
	missing, err := directory.Missing(ctx, others)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: unknown users %v", ErrNotFound, missing)
	}
	return nil
}
