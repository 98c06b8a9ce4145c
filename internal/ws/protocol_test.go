package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/TaskRoom/internal/model"
	"github.com/Gopher0727/TaskRoom/internal/service"
)

func TestDeliveries(t *testing.T) {
	msg := &model.Message{ID: "m1"}
	report := &service.CascadeReport{Chats: []string{"c1", "c2"}}

	tests := []struct {
		name   string
		event  service.Event
		routes []string
		closes [][]string
	}{
		{
			name:   "message created",
			event:  service.Event{Type: service.EventMessageCreated, RoomID: "r1", ChatID: "c1", Message: msg},
			routes: []string{"chat:c1 " + EvtCreateMessage, "room:r1 " + EvtNewMessageNotify},
			closes: [][]string{nil, nil},
		},
		{
			name:   "thread created",
			event:  service.Event{Type: service.EventThreadCreated, RoomID: "r1", ChatID: "c1", Message: msg},
			routes: []string{"chat:c1 " + EvtThreadMessage, "room:r1 " + EvtNewThreadNotify},
			closes: [][]string{nil, nil},
		},
		{
			name:   "message deleted",
			event:  service.Event{Type: service.EventMessageDeleted, RoomID: "r1", ChatID: "c1", Message: msg},
			routes: []string{"chat:c1 " + EvtMessageDeleted},
			closes: [][]string{nil},
		},
		{
			name:   "task updated",
			event:  service.Event{Type: service.EventTaskUpdated, RoomID: "r1", ChatID: "c1", Removed: []string{"u2"}},
			routes: []string{"chat:c1 " + EvtTaskUpdated, "room:r1 " + EvtTaskUpdated},
			closes: [][]string{nil, nil},
		},
		{
			name:   "task deleted closes its chats",
			event:  service.Event{Type: service.EventTaskDeleted, RoomID: "r1", ChatID: "c1", Report: report},
			routes: []string{"chat:c1 " + EvtTaskDeleted, "room:r1 " + EvtTaskDeleted},
			closes: [][]string{nil, {"chat:c1", "chat:c2"}},
		},
		{
			name:   "room deleted closes everything",
			event:  service.Event{Type: service.EventRoomDeleted, RoomID: "r1", Report: report},
			routes: []string{"room:r1 " + EvtRoomDeleted},
			closes: [][]string{{"chat:c1", "chat:c2", "room:r1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deliveries(tt.event)
			require.Len(t, got, len(tt.routes))
			for i, d := range got {
				assert.Equal(t, tt.routes[i], d.channel+" "+d.event)
				assert.Equal(t, tt.closes[i], d.closes)
			}
		})
	}

	assert.Empty(t, deliveries(service.Event{Type: "unknown"}))
}

func TestTaskUpdatedEvictsRemovedParticipants(t *testing.T) {
	got := deliveries(service.Event{Type: service.EventTaskUpdated, RoomID: "r1", ChatID: "c1", Removed: []string{"u2", "u3"}})
	require.Len(t, got, 2)
	assert.Equal(t, []string{"u2", "u3"}, got[0].evicts, "removed users leave the chat channel")
	assert.Empty(t, got[1].evicts, "room membership is unchanged")
}
