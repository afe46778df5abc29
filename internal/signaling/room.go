package signaling

import (
	"sort"
	"time"

	"github.com/samber/lo"
)

// Role is the seat a connection takes in a meeting.
type Role string

const (
	RoleDoctor  Role = "Doctor"
	RolePatient Role = "Patient"
)

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleDoctor {
		return RolePatient
	}
	return RoleDoctor
}

// Status of a participant. It only moves forward.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusReadyForCall Status = "ready"
)

// Participant is one connection's membership record within a room.
type Participant struct {
	ConnectionID string    `json:"connection_id"`
	Role         Role      `json:"role"`
	ClientID     string    `json:"client_id,omitempty"`
	JoinedAt     time.Time `json:"joined_at"`
	Status       Status    `json:"status"`
}

// Room represents a single meeting where one doctor and one patient can
// connect. Participants are keyed by connection id.
type Room struct {
	MeetingID    string
	CreatedAt    time.Time
	Participants map[string]*Participant
}

func newRoom(meetingID string, now time.Time) *Room {
	return &Room{
		MeetingID:    meetingID,
		CreatedAt:    now,
		Participants: make(map[string]*Participant, 2),
	}
}

func (r *Room) byRole(role Role) (*Participant, bool) {
	return lo.Find(lo.Values(r.Participants), func(p *Participant) bool {
		return p.Role == role
	})
}

func (r *Room) other(connID string) (*Participant, bool) {
	return lo.Find(lo.Values(r.Participants), func(p *Participant) bool {
		return p.ConnectionID != connID
	})
}

func (r *Room) bothPresent() bool {
	_, doctor := r.byRole(RoleDoctor)
	_, patient := r.byRole(RolePatient)
	return doctor && patient
}

// members returns value copies ordered by join time so callers never hold
// pointers into store state.
func (r *Room) members() []Participant {
	out := lo.Map(lo.Values(r.Participants), func(p *Participant, _ int) Participant {
		return *p
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}

func (r *Room) snapshot() RoomSnapshot {
	return RoomSnapshot{
		MeetingID:    r.MeetingID,
		CreatedAt:    r.CreatedAt,
		Participants: r.members(),
	}
}

// RoomSnapshot is a read-only copy of a room taken under the store lock.
type RoomSnapshot struct {
	MeetingID    string        `json:"meeting_id"`
	CreatedAt    time.Time     `json:"created_at"`
	Participants []Participant `json:"participants"`
}

// ByRole returns the participant holding role in the snapshot.
func (s RoomSnapshot) ByRole(role Role) (Participant, bool) {
	return lo.Find(s.Participants, func(p Participant) bool {
		return p.Role == role
	})
}

// ConnectionIDs lists every member's connection id.
func (s RoomSnapshot) ConnectionIDs() []string {
	return lo.Map(s.Participants, func(p Participant, _ int) string {
		return p.ConnectionID
	})
}
