package signaling

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreJoinCreatesRoom(t *testing.T) {
	s := NewStore()

	res := s.Join("m1", RoleDoctor, "conn1", "doc-tab")
	assert.True(t, res.Created)
	assert.False(t, res.BothPresent)
	assert.False(t, res.PairFormed)
	assert.Empty(t, res.Evicted)
	require.Len(t, res.Room.Participants, 1)

	p := res.Room.Participants[0]
	assert.Equal(t, "conn1", p.ConnectionID)
	assert.Equal(t, RoleDoctor, p.Role)
	assert.Equal(t, "doc-tab", p.ClientID)
	assert.Equal(t, StatusConnected, p.Status)
	assert.False(t, p.JoinedAt.IsZero())
}

func TestStoreJoinPairsDoctorAndPatient(t *testing.T) {
	s := NewStore()
	s.Join("m1", RoleDoctor, "conn1", "")

	res := s.Join("m1", RolePatient, "conn2", "")
	assert.False(t, res.Created)
	assert.True(t, res.BothPresent)
	assert.True(t, res.PairFormed)
	assert.ElementsMatch(t, []string{"conn1", "conn2"}, res.Room.ConnectionIDs())
}

func TestStoreJoinEvictsSameRole(t *testing.T) {
	s := NewStore()
	s.Join("m1", RoleDoctor, "conn1", "")
	s.Join("m1", RolePatient, "conn2", "")

	res := s.Join("m1", RoleDoctor, "conn3", "")
	require.Len(t, res.Evicted, 1)
	assert.Equal(t, "conn1", res.Evicted[0].ConnectionID)
	assert.True(t, res.PairFormed)

	doctor, ok := s.FindByRole("m1", RoleDoctor)
	require.True(t, ok)
	assert.Equal(t, "conn3", doctor.ConnectionID)

	room, ok := s.Room("m1")
	require.True(t, ok)
	assert.Len(t, room.Participants, 2)
}

func TestStoreRejoinKeepsMembership(t *testing.T) {
	s := NewStore()
	s.Join("m1", RoleDoctor, "conn1", "")
	s.Join("m1", RolePatient, "conn2", "")
	require.True(t, s.MarkReady("m1", "conn1"))

	res := s.Join("m1", RoleDoctor, "conn1", "new-tab")
	assert.True(t, res.Rejoined)
	assert.False(t, res.PairFormed)
	assert.True(t, res.BothPresent)
	assert.Empty(t, res.Evicted)

	p, ok := s.Member("m1", "conn1")
	require.True(t, ok)
	assert.Equal(t, StatusReadyForCall, p.Status)
	assert.Equal(t, "new-tab", p.ClientID)
}

func TestStoreMarkReadyMissingIsNoop(t *testing.T) {
	s := NewStore()
	assert.False(t, s.MarkReady("m1", "conn1"))

	s.Join("m1", RoleDoctor, "conn1", "")
	assert.False(t, s.MarkReady("m1", "conn9"))
	assert.True(t, s.MarkReady("m1", "conn1"))
	assert.True(t, s.MarkReady("m1", "conn1"))

	p, _ := s.Member("m1", "conn1")
	assert.Equal(t, StatusReadyForCall, p.Status)
}

func TestStoreLeaveTearsDownEmptyRoom(t *testing.T) {
	s := NewStore()
	s.Join("m1", RoleDoctor, "conn1", "")
	s.Join("m1", RolePatient, "conn2", "")

	res := s.Leave("m1", "conn1")
	assert.True(t, res.Removed)
	assert.False(t, res.RoomClosed)
	assert.Equal(t, RoleDoctor, res.Participant.Role)
	require.Len(t, res.Remaining, 1)
	assert.Equal(t, "conn2", res.Remaining[0].ConnectionID)

	res = s.Leave("m1", "conn2")
	assert.True(t, res.Removed)
	assert.True(t, res.RoomClosed)

	_, ok := s.Room("m1")
	assert.False(t, ok)

	fresh := s.Join("m1", RolePatient, "conn4", "")
	assert.True(t, fresh.Created)
	assert.Equal(t, []string{"conn4"}, fresh.Room.ConnectionIDs())
}

func TestStoreLeaveUnknownIsNoop(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Leave("m1", "conn1").Removed)

	s.Join("m1", RoleDoctor, "conn1", "")
	res := s.Leave("m1", "conn2")
	assert.False(t, res.Removed)
	assert.False(t, res.RoomClosed)

	_, ok := s.Room("m1")
	assert.True(t, ok)
}

func TestStoreFindOther(t *testing.T) {
	s := NewStore()
	s.Join("m1", RoleDoctor, "conn1", "")

	_, ok := s.FindOther("m1", "conn1")
	assert.False(t, ok, "no counterpart yet")

	s.Join("m1", RolePatient, "conn2", "")
	other, ok := s.FindOther("m1", "conn2")
	require.True(t, ok)
	assert.Equal(t, "conn1", other.ConnectionID)

	_, ok = s.FindOther("m1", "stranger")
	assert.False(t, ok, "non-members have no counterpart")

	s.Leave("m1", "conn1")
	_, ok = s.FindOther("m1", "conn2")
	assert.False(t, ok)
}

func TestStoreSnapshotAndStats(t *testing.T) {
	s := NewStore()
	s.Join("b", RoleDoctor, "conn1", "")
	s.Join("b", RolePatient, "conn2", "")
	s.Join("a", RolePatient, "conn3", "")
	s.MarkReady("b", "conn2")

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].MeetingID)
	assert.Equal(t, "b", snap[1].MeetingID)

	assert.Equal(t, Stats{Rooms: 2, Participants: 3, Ready: 1, Paired: 1}, s.Stats())
}

func TestStoreNeverSeatsTwoOfARole(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(7))
	roles := []Role{RoleDoctor, RolePatient}

	for i := 0; i < 500; i++ {
		conn := fmt.Sprintf("conn%d", rng.Intn(12))
		if rng.Intn(3) == 0 {
			s.Leave("m1", conn)
		} else {
			s.Join("m1", roles[rng.Intn(2)], conn, "")
		}

		room, ok := s.Room("m1")
		if !ok {
			continue
		}
		counts := map[Role]int{}
		for _, p := range room.Participants {
			counts[p.Role]++
		}
		require.LessOrEqual(t, counts[RoleDoctor], 1)
		require.LessOrEqual(t, counts[RolePatient], 1)
		require.LessOrEqual(t, len(room.Participants), 2)
	}
}

func TestStoreConcurrentJoins(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := RoleDoctor
			if i%2 == 1 {
				role = RolePatient
			}
			s.Join("m1", role, fmt.Sprintf("conn%d", i), "")
		}(i)
	}
	wg.Wait()

	room, ok := s.Room("m1")
	require.True(t, ok)
	require.Len(t, room.Participants, 2)
	_, doctor := room.ByRole(RoleDoctor)
	_, patient := room.ByRole(RolePatient)
	assert.True(t, doctor)
	assert.True(t, patient)
}
