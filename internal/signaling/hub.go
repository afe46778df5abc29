package signaling

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/diagno/callsignal/internal/metrics"
)

// Conn is the hub's view of one live connection. Send must never block.
type Conn interface {
	ID() string
	Send(msg *Message) error
	Close()
}

type seat struct {
	meetingID string
	role      Role
}

// Hub is the central brain of the signaling server. It owns the connection
// registry and the room store and is the single entry point for every
// message a connection sends.
type Hub struct {
	registry *Registry
	store    *Store
	relay    *Relay
	validate *validator.Validate

	// joinMu serializes seat changes across the registry and the store.
	joinMu sync.Mutex

	mu    sync.Mutex
	conns map[string]Conn
	seats map[string]seat
}

// NewHub creates a Hub with its own registry and store. It is meant to be
// created once per process.
func NewHub() *Hub {
	h := &Hub{
		registry: NewRegistry(),
		store:    NewStore(),
		validate: validator.New(),
		conns:    make(map[string]Conn),
		seats:    make(map[string]seat),
	}
	h.relay = NewRelay(h.store, h)
	return h
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Store() *Store       { return h.store }

// Register makes a connection addressable. It holds no seat until it joins.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()

	metrics.Connections.Inc()
	log.Debug().Str("conn_id", c.ID()).Msg("Client registered")
}

// Unregister runs when a connection goes away. If the connection was
// already superseded in its room this releases nothing.
func (h *Hub) Unregister(c Conn) {
	id := c.ID()

	h.mu.Lock()
	if _, ok := h.conns[id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, id)
	s, seated := h.seats[id]
	delete(h.seats, id)
	h.mu.Unlock()

	metrics.Connections.Dec()
	log.Debug().Str("conn_id", id).Msg("Client unregistered")

	if seated {
		h.joinMu.Lock()
		res := h.release(id, s)
		h.joinMu.Unlock()
		h.notifyLeave(id, s, res)
	}
}

// Handle processes one inbound message from c. Each connection calls it from
// its own reader goroutine, so a connection's messages are handled in order.
func (h *Hub) Handle(c Conn, msg *Message) {
	switch msg.Type {
	case TypeJoinRoom:
		h.handleJoin(c, msg)

	case TypeReadyForCall:
		var req ReadyForCallPayload
		if !h.decode(c, msg, &req) {
			return
		}
		meetingID := h.meetingFor(c.ID(), req.MeetingID)
		if h.store.MarkReady(meetingID, c.ID()) {
			log.Info().Str("meeting_id", meetingID).Str("conn_id", c.ID()).Msg("Participant is ready for call")
		}

	case TypeOffer:
		var req OfferPayload
		if !h.decode(c, msg, &req) {
			return
		}
		h.relay.RelayOffer(h.meetingFor(c.ID(), req.MeetingID), c.ID(), req.Offer)

	case TypeAnswer:
		var req AnswerPayload
		if !h.decode(c, msg, &req) {
			return
		}
		h.relay.RelayAnswer(h.meetingFor(c.ID(), req.MeetingID), c.ID(), req.Answer)

	case TypeIceCandidate:
		var req IceCandidatePayload
		if !h.decode(c, msg, &req) {
			return
		}
		h.relay.RelayIceCandidate(h.meetingFor(c.ID(), req.MeetingID), c.ID(), req.Candidate)

	default:
		log.Warn().Str("conn_id", c.ID()).Str("type", msg.Type).Msg("Unknown message type")
	}
}

func (h *Hub) handleJoin(c Conn, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("conn_id", c.ID()).Msg("Error in join-room")
			metrics.Joins.WithLabelValues("failed").Inc()
			h.send(c, mustMessage(TypeRoomError, RoomErrorPayload{Message: ErrJoinFailed.Error()}))
		}
	}()

	var req JoinRoomPayload
	if err := msg.Decode(&req); err != nil {
		h.reject(c, ErrJoinFailed)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.reject(c, joinError(err))
		return
	}

	id := c.ID()
	log.Info().Str("meeting_id", req.MeetingID).Str("conn_id", id).Str("role", string(req.Role)).
		Str("client_id", req.ClientID).Msg("Attempting to join room")

	t := h.takeSeat(id, req)

	if t.vacated != nil {
		h.notifyLeave(id, *t.vacated, t.left)
	}

	kicked := make(map[string]struct{})
	if t.registryEvicted != "" {
		metrics.Evictions.WithLabelValues("registry").Inc()
		log.Info().Str("meeting_id", req.MeetingID).Str("conn_id", t.registryEvicted).Str("role", string(req.Role)).
			Msg("Disconnecting previous connection for role")
		h.forceDisconnect(t.registryEvicted, fmt.Sprintf("New %s connection initiated", strings.ToLower(string(req.Role))))
		kicked[t.registryEvicted] = struct{}{}
	}
	for _, p := range t.join.Evicted {
		metrics.Evictions.WithLabelValues("room").Inc()
		if _, done := kicked[p.ConnectionID]; done {
			continue
		}
		h.forceDisconnect(p.ConnectionID, "")
	}

	res := t.join
	if res.Created {
		log.Info().Str("meeting_id", req.MeetingID).Msg("Created new room")
	}
	logRoomState(res.Room)
	metrics.Joins.WithLabelValues("joined").Inc()
	h.observe()

	h.send(c, mustMessage(TypeJoinedRoom, JoinedRoomPayload{
		Success: true,
		Role:    req.Role,
		RoomID:  req.MeetingID,
	}))

	if res.PairFormed {
		h.startCall(id, req.MeetingID)
	}
}

// takeover is the state change of one join, computed under joinMu.
type takeover struct {
	vacated         *seat
	left            LeaveResult
	registryEvicted string
	join            JoinResult
}

// takeSeat applies a join to the registry, the store and the seat table as one
// step. Nothing in here sends or closes, so a connection's Close may safely
// trigger another join.
func (h *Hub) takeSeat(id string, req JoinRoomPayload) takeover {
	h.joinMu.Lock()
	defer h.joinMu.Unlock()

	var t takeover
	h.mu.Lock()
	prev, ok := h.seats[id]
	if ok && (prev.meetingID != req.MeetingID || prev.role != req.Role) {
		delete(h.seats, id)
		t.vacated = &prev
	}
	h.mu.Unlock()
	if t.vacated != nil {
		t.left = h.release(id, *t.vacated)
	}

	t.registryEvicted, _ = h.registry.Acquire(req.MeetingID, req.Role, id)
	t.join = h.store.Join(req.MeetingID, req.Role, id, req.ClientID)

	h.mu.Lock()
	h.seats[id] = seat{meetingID: req.MeetingID, role: req.Role}
	h.mu.Unlock()
	return t
}

// startCall announces the pair currently seated. A joiner superseded while
// its own notifications were going out stays silent; the newer join has
// announced its own pair.
func (h *Hub) startCall(id, meetingID string) {
	room, ok := h.store.Room(meetingID)
	if !ok || !slices.Contains(room.ConnectionIDs(), id) {
		log.Debug().Str("meeting_id", meetingID).Str("conn_id", id).Msg("Joiner superseded, start-call skipped")
		return
	}
	doctor, okDoctor := room.ByRole(RoleDoctor)
	patient, okPatient := room.ByRole(RolePatient)
	if !okDoctor || !okPatient {
		return
	}
	log.Info().Str("meeting_id", meetingID).Str("doctor", doctor.ConnectionID).
		Str("patient", patient.ConnectionID).Msg("Both participants present, initiating connection")
	metrics.CallsStarted.Inc()
	h.broadcast(room.Participants, mustMessage(TypeStartCall, StartCallPayload{
		Doctor:  doctor.ConnectionID,
		Patient: patient.ConnectionID,
	}))
}

// release frees the connection's seat in the registry and the store.
func (h *Hub) release(id string, s seat) LeaveResult {
	h.registry.Release(s.meetingID, s.role, id)
	return h.store.Leave(s.meetingID, id)
}

func (h *Hub) notifyLeave(id string, s seat, res LeaveResult) {
	if !res.Removed {
		log.Debug().Str("meeting_id", s.meetingID).Str("conn_id", id).Msg("Connection already superseded, nothing to remove")
		return
	}
	h.observe()

	log.Info().Str("meeting_id", s.meetingID).Str("conn_id", id).Str("role", string(res.Participant.Role)).
		Msg("User disconnected from room")

	h.broadcast(res.Remaining, mustMessage(TypeUserDisconnected, UserDisconnectedPayload{
		UserID: id,
		Role:   res.Participant.Role,
	}))

	if res.RoomClosed {
		log.Info().Str("meeting_id", s.meetingID).Msg("Room deleted, no participants remaining")
	}
}

func (h *Hub) forceDisconnect(id, reason string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if !ok {
		log.Debug().Str("conn_id", id).Msg("Evicted connection already gone")
		return
	}
	h.send(c, mustMessage(TypeForceDisconnect, ForceDisconnectPayload{Message: reason}))
	c.Close()
}

func (h *Hub) reject(c Conn, err error) {
	log.Warn().Err(err).Str("conn_id", c.ID()).Msg("Rejected join-room")
	metrics.Joins.WithLabelValues("rejected").Inc()
	h.send(c, mustMessage(TypeRoomError, RoomErrorPayload{Message: err.Error()}))
	c.Close()
}

func (h *Hub) decode(c Conn, msg *Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		log.Warn().Err(err).Str("conn_id", c.ID()).Str("type", msg.Type).Msg("Malformed payload, ignored")
		return false
	}
	return true
}

// meetingFor falls back to the connection's seat when the message does not
// name a meeting.
func (h *Hub) meetingFor(id, meetingID string) string {
	if meetingID != "" {
		return meetingID
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seats[id].meetingID
}

// SendTo queues msg for a single connection.
func (h *Hub) SendTo(id string, msg *Message) error {
	h.mu.Lock()
	c, ok := h.conns[id]
	h.mu.Unlock()
	if !ok {
		metrics.Dropped.WithLabelValues(msg.Type).Inc()
		return ErrUnknownConn
	}
	if err := c.Send(msg); err != nil {
		metrics.Dropped.WithLabelValues(msg.Type).Inc()
		return err
	}
	return nil
}

func (h *Hub) send(c Conn, msg *Message) {
	if err := c.Send(msg); err != nil {
		metrics.Dropped.WithLabelValues(msg.Type).Inc()
		log.Warn().Err(err).Str("conn_id", c.ID()).Str("type", msg.Type).Msg("Failed to deliver message")
	}
}

func (h *Hub) broadcast(members []Participant, msg *Message) {
	for _, p := range members {
		if err := h.SendTo(p.ConnectionID, msg); err != nil {
			log.Warn().Err(err).Str("conn_id", p.ConnectionID).Str("type", msg.Type).Msg("Failed to deliver message")
		}
	}
}

func (h *Hub) observe() {
	h.Stats()
}

// Rooms returns a snapshot of every active room.
func (h *Hub) Rooms() []RoomSnapshot {
	return h.store.Snapshot()
}

// Stats counts rooms and participants and refreshes the matching gauges.
func (h *Hub) Stats() Stats {
	st := h.store.Stats()
	metrics.Rooms.Set(float64(st.Rooms))
	metrics.Participants.Set(float64(st.Participants))
	return st
}

// Shutdown closes every connection. Their unregistration happens as their
// read loops exit.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := lo.Values(h.conns)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func joinError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrJoinFailed
	}
	for _, fe := range verrs {
		if fe.StructField() == "Role" {
			return ErrInvalidRole
		}
	}
	return ErrMissingMeeting
}

func logRoomState(room RoomSnapshot) {
	members := lo.Map(room.Participants, func(p Participant, _ int) string {
		return fmt.Sprintf("%s:%s (joined at: %s)", p.ConnectionID, p.Role, p.JoinedAt.Format("15:04:05"))
	})
	log.Info().Str("meeting_id", room.MeetingID).Strs("participants", members).Msg("Room state")
}
