package signaling

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// Message is the envelope for every websocket frame in both directions.
// Payload field names are the wire contract and are left raw until a
// handler decodes them.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound (client to server) message types.
const (
	TypeJoinRoom     = "join-room"
	TypeReadyForCall = "ready-for-call"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeIceCandidate = "ice-candidate"
)

// Outbound (server to client) message types. Relayed signals reuse the
// inbound type names.
const (
	TypeJoinedRoom       = "joined-room"
	TypeRoomError        = "room-error"
	TypeForceDisconnect  = "force-disconnect"
	TypeStartCall        = "start-call"
	TypeUserDisconnected = "user-disconnected"
)

// JoinRoomPayload is sent by a client that wants a seat in a meeting.
type JoinRoomPayload struct {
	MeetingID string `json:"meeting_id" validate:"required"`
	Role      Role   `json:"role" validate:"required,oneof=Doctor Patient"`
	ClientID  string `json:"clientId"`
}

type JoinedRoomPayload struct {
	Success bool   `json:"success"`
	Role    Role   `json:"role"`
	RoomID  string `json:"roomId"`
}

type RoomErrorPayload struct {
	Message string `json:"message"`
}

// ForceDisconnectPayload carries an optional reason. The room scan eviction
// sends it without one.
type ForceDisconnectPayload struct {
	Message string `json:"message,omitempty"`
}

type StartCallPayload struct {
	Doctor  string `json:"doctor"`
	Patient string `json:"patient"`
}

// ConnFor returns the connection id seated as role.
func (s StartCallPayload) ConnFor(role Role) string {
	if role == RoleDoctor {
		return s.Doctor
	}
	return s.Patient
}

type ReadyForCallPayload struct {
	MeetingID string `json:"meeting_id"`
}

// OfferPayload is used for both directions: inbound carries MeetingID,
// outbound carries From.
type OfferPayload struct {
	Offer     json.RawMessage `json:"offer"`
	MeetingID string          `json:"meeting_id,omitempty"`
	From      string          `json:"from,omitempty"`
}

type AnswerPayload struct {
	Answer    json.RawMessage `json:"answer"`
	MeetingID string          `json:"meeting_id,omitempty"`
	From      string          `json:"from,omitempty"`
}

type IceCandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
	MeetingID string          `json:"meeting_id,omitempty"`
	From      string          `json:"from,omitempty"`
}

type UserDisconnectedPayload struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// NewMessage encodes payload into an envelope of the given type.
func NewMessage(msgType string, payload any) (*Message, error) {
	msg := &Message{Type: msgType}
	if payload == nil {
		return msg, nil
	}
	raw, err := wire.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = raw
	return msg, nil
}

// mustMessage is for server-built payloads whose encoding cannot fail.
func mustMessage(msgType string, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return wire.Unmarshal(m.Payload, v)
}

// ParseMessage decodes a raw websocket frame.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := wire.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Encode renders the envelope for the wire.
func (m *Message) Encode() ([]byte, error) {
	return wire.Marshal(m)
}
