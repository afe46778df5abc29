package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagno/callsignal/internal/signaling"
)

func TestRoomRowsFlattensParticipants(t *testing.T) {
	joined := time.Date(2026, 1, 2, 9, 30, 0, 0, time.Local)
	rooms := []signaling.RoomSnapshot{
		{MeetingID: "a", Participants: []signaling.Participant{
			{ConnectionID: "c1", Role: signaling.RoleDoctor, Status: signaling.StatusReadyForCall, JoinedAt: joined},
			{ConnectionID: "c2", Role: signaling.RolePatient, ClientID: "tab", Status: signaling.StatusConnected, JoinedAt: joined},
		}},
		{MeetingID: "b", Participants: []signaling.Participant{
			{ConnectionID: "c3", Role: signaling.RolePatient, Status: signaling.StatusConnected, JoinedAt: joined},
		}},
	}

	rows := roomRows(rooms)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].MeetingID)
	assert.Equal(t, "Doctor", rows[0].Role)
	assert.Equal(t, "ready", rows[0].Status)
	assert.Equal(t, "09:30:00", rows[0].JoinedAt)
	assert.Equal(t, "tab", rows[1].ClientID)
	assert.Equal(t, "b", rows[2].MeetingID)
	assert.Empty(t, roomRows(nil))
}
