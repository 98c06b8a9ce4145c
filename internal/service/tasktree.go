package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/repository"
)

// TaskTree keeps parent/child links and room task lists consistent. Every
// method writes through the given scope and is meant to run inside the
// transaction of the surrounding create or delete.
type TaskTree struct{}

// ValidateParent loads parentID and checks it lives in roomID.
func (TaskTree) ValidateParent(ctx context.Context, sc *repository.Scope, roomID, parentID string) (*model.Task, error) {
	parent, err := sc.Tasks().FindByID(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("parent task %s: %w", parentID, err)
	}
	if parent.RoomID != roomID {
		return nil, ErrParentMismatch
	}
	return parent, nil
}

// Attach links a freshly created task under parent, or under its room when
// parent is nil. The task's moderator joins the parent's participants.
func (TaskTree) Attach(ctx context.Context, sc *repository.Scope, task, parent *model.Task) error {
	if parent != nil {
		parent.SubTasks = model.AddToSet(parent.SubTasks, task.ID)
		parent.Participants = model.AddToSet(parent.Participants, task.Moderator)
		return sc.Tasks().Update(ctx, parent)
	}
	room, err := sc.Rooms().FindByID(ctx, task.RoomID)
	if err != nil {
		return fmt.Errorf("room %s: %w", task.RoomID, err)
	}
	room.Tasks = model.AddToSet(room.Tasks, task.ID)
	return sc.Rooms().Update(ctx, room)
}

// Detach unlinks task from the tree before it is deleted and returns the ids
// of the children that were promoted.
//
// With a parent P the children take the task's slot in P.SubTasks, in order,
// and point at P. Without a parent they become top-level tasks appended to the
// room list in SubTasks order.
func (TaskTree) Detach(ctx context.Context, sc *repository.Scope, task *model.Task) ([]string, error) {
	children := model.Dedup(slices.DeleteFunc(slices.Clone(task.SubTasks), func(id string) bool { return id == task.ID }))

	parentID := task.Parent()
	if parentID != "" {
		parent, err := sc.Tasks().FindByID(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("parent task %s: %w", parentID, err)
		}
		parent.SubTasks = splice(parent.SubTasks, task.ID, children)
		for _, childID := range children {
			child, err := sc.Tasks().FindByID(ctx, childID)
			if err != nil {
				return nil, fmt.Errorf("subtask %s: %w", childID, err)
			}
			child.SetParent(parentID)
			if err := sc.Tasks().Update(ctx, child); err != nil {
				return nil, err
			}
			parent.Participants = model.AddToSet(parent.Participants, child.Moderator)
		}
		if err := sc.Tasks().Update(ctx, parent); err != nil {
			return nil, err
		}
		return children, nil
	}

	room, err := sc.Rooms().FindByID(ctx, task.RoomID)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", task.RoomID, err)
	}
	room.Tasks = model.Remove(room.Tasks, task.ID)
	for _, childID := range children {
		child, err := sc.Tasks().FindByID(ctx, childID)
		if err != nil {
			return nil, fmt.Errorf("subtask %s: %w", childID, err)
		}
		child.SetParent("")
		if err := sc.Tasks().Update(ctx, child); err != nil {
			return nil, err
		}
		room.Tasks = model.AddToSet(room.Tasks, childID)
	}
	if err := sc.Rooms().Update(ctx, room); err != nil {
		return nil, err
	}
	return children, nil
}

// splice replaces id in list with repl. Entries of repl already present
// elsewhere in list are not duplicated; when id is absent repl is appended.
func splice(list []string, id string, repl []string) []string {
	pos := slices.Index(list, id)
	rest := make([]string, 0, len(list))
	for _, v := range list {
		if v != id {
			rest = append(rest, v)
		}
	}
	insert := make([]string, 0, len(repl))
	for _, v := range repl {
		if !slices.Contains(rest, v) {
			insert = append(insert, v)
		}
	}
	if pos < 0 {
		return append(rest, insert...)
	}
	return slices.Insert(rest, pos, insert...)
}
