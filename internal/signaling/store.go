package signaling

import (
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// JoinResult describes the room after a join.
type JoinResult struct {
	Room RoomSnapshot

	// Evicted holds every same-role participant removed to make room for
	// the joiner. Each one must be force-disconnected by the caller.
	Evicted []Participant

	// Created is set when this join brought the room into existence.
	Created bool

	// Rejoined is set when the connection already held this role in the
	// room; membership is unchanged.
	Rejoined bool

	// BothPresent reports a doctor and a patient are seated.
	BothPresent bool

	// PairFormed is set when this join seated a new doctor/patient pair.
	// It is the only signal that should trigger start-call.
	PairFormed bool
}

// LeaveResult describes the room after a leave.
type LeaveResult struct {
	Participant Participant
	Removed     bool
	RoomClosed  bool
	Remaining   []Participant
}

// Stats is a point-in-time count over all rooms.
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	Ready        int `json:"ready"`
	Paired       int `json:"paired"`
}

// Store owns every room in the process. All operations run under one lock
// so no caller can observe a half-updated room.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
}

// Join seats connID in the meeting with the given role, creating the room
// if needed. Any participant already holding the role is removed first.
func (s *Store) Join(meetingID string, role Role, connID, clientID string) JoinResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res JoinResult
	room, ok := s.rooms[meetingID]
	if !ok {
		room = newRoom(meetingID, s.now())
		s.rooms[meetingID] = room
		res.Created = true
	}

	if existing, ok := room.Participants[connID]; ok {
		if existing.Role == role {
			if clientID != "" {
				existing.ClientID = clientID
			}
			res.Rejoined = true
			res.Room = room.snapshot()
			res.BothPresent = room.bothPresent()
			return res
		}
		// The same connection switching roles gets a fresh record.
		delete(room.Participants, connID)
	}

	for id, p := range room.Participants {
		if p.Role == role {
			res.Evicted = append(res.Evicted, *p)
			delete(room.Participants, id)
		}
	}

	room.Participants[connID] = &Participant{
		ConnectionID: connID,
		Role:         role,
		ClientID:     clientID,
		JoinedAt:     s.now(),
		Status:       StatusConnected,
	}

	res.Room = room.snapshot()
	res.BothPresent = room.bothPresent()
	res.PairFormed = res.BothPresent
	return res
}

// MarkReady moves the participant to ReadyForCall. A missing room or
// participant is not an error.
func (s *Store) MarkReady(meetingID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		return false
	}
	p, ok := room.Participants[connID]
	if !ok {
		return false
	}
	p.Status = StatusReadyForCall
	return true
}

// Leave removes the participant and tears the room down once it is empty.
func (s *Store) Leave(meetingID, connID string) LeaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res LeaveResult
	room, ok := s.rooms[meetingID]
	if !ok {
		return res
	}
	p, ok := room.Participants[connID]
	if !ok {
		return res
	}

	delete(room.Participants, connID)
	res.Participant = *p
	res.Removed = true

	if len(room.Participants) == 0 {
		delete(s.rooms, meetingID)
		res.RoomClosed = true
		return res
	}
	res.Remaining = room.members()
	return res
}

// FindByRole returns the participant currently holding role.
func (s *Store) FindByRole(meetingID string, role Role) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		return Participant{}, false
	}
	p, ok := room.byRole(role)
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// FindOther returns the member that is not connID. Nothing is returned when
// connID is not itself a member.
func (s *Store) FindOther(meetingID, connID string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		return Participant{}, false
	}
	if _, member := room.Participants[connID]; !member {
		return Participant{}, false
	}
	p, ok := room.other(connID)
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Member reports whether connID is seated in the meeting.
func (s *Store) Member(meetingID, connID string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		return Participant{}, false
	}
	p, ok := room.Participants[connID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Room returns a snapshot of a single room.
func (s *Store) Room(meetingID string) (RoomSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[meetingID]
	if !ok {
		return RoomSnapshot{}, false
	}
	return room.snapshot(), true
}

// Snapshot copies every room, ordered by meeting id.
func (s *Store) Snapshot() []RoomSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := lo.MapToSlice(s.rooms, func(_ string, r *Room) RoomSnapshot {
		return r.snapshot()
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].MeetingID < out[j].MeetingID
	})
	return out
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Rooms: len(s.rooms)}
	for _, room := range s.rooms {
		st.Participants += len(room.Participants)
		st.Ready += lo.CountBy(lo.Values(room.Participants), func(p *Participant) bool {
			return p.Status == StatusReadyForCall
		})
		if room.bothPresent() {
			st.Paired++
		}
	}
	return st
}
