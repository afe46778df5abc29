package signaling

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/diagno/callsignal/internal/metrics"
)

// Delivery is the outcome of a relay attempt. It is only ever logged and
// counted; the sender never learns about it.
type Delivery int

const (
	Delivered Delivery = iota
	NoRecipient
	SendFailed
)

func (d Delivery) String() string {
	switch d {
	case Delivered:
		return "delivered"
	case NoRecipient:
		return "no_recipient"
	default:
		return "send_failed"
	}
}

// Sender delivers a message to a single connection without blocking.
type Sender interface {
	SendTo(connID string, msg *Message) error
}

// Relay routes signaling payloads to the one correct recipient based on
// the store's current membership. It never looks inside the payload.
type Relay struct {
	store  *Store
	sender Sender
}

func NewRelay(store *Store, sender Sender) *Relay {
	return &Relay{store: store, sender: sender}
}

// RelayOffer forwards an offer to the patient currently seated in the room.
// Senders that are not seated in the meeting are dropped on purpose.
func (r *Relay) RelayOffer(meetingID, from string, offer json.RawMessage) Delivery {
	return r.toRole(TypeOffer, meetingID, from, RolePatient, OfferPayload{Offer: offer, From: from})
}

// RelayAnswer forwards an answer to the doctor currently seated in the room.
func (r *Relay) RelayAnswer(meetingID, from string, answer json.RawMessage) Delivery {
	return r.toRole(TypeAnswer, meetingID, from, RoleDoctor, AnswerPayload{Answer: answer, From: from})
}

// RelayIceCandidate forwards a candidate to whichever member is not the
// sender.
func (r *Relay) RelayIceCandidate(meetingID, from string, candidate json.RawMessage) Delivery {
	target, ok := r.store.FindOther(meetingID, from)
	if !ok {
		return r.drop(TypeIceCandidate, meetingID, from)
	}
	return r.deliver(TypeIceCandidate, meetingID, from, target, IceCandidatePayload{Candidate: candidate, From: from})
}

func (r *Relay) toRole(kind, meetingID, from string, role Role, payload any) Delivery {
	if _, member := r.store.Member(meetingID, from); !member {
		return r.drop(kind, meetingID, from)
	}
	target, ok := r.store.FindByRole(meetingID, role)
	if !ok || target.ConnectionID == from {
		return r.drop(kind, meetingID, from)
	}
	return r.deliver(kind, meetingID, from, target, payload)
}

func (r *Relay) drop(kind, meetingID, from string) Delivery {
	log.Debug().
		Str("type", kind).
		Str("meeting_id", meetingID).
		Str("from", from).
		Msg("No recipient for signal, dropped")
	metrics.Relayed.WithLabelValues(kind, NoRecipient.String()).Inc()
	return NoRecipient
}

func (r *Relay) deliver(kind, meetingID, from string, target Participant, payload any) Delivery {
	msg := mustMessage(kind, payload)
	if err := r.sender.SendTo(target.ConnectionID, msg); err != nil {
		log.Warn().Err(err).
			Str("type", kind).
			Str("meeting_id", meetingID).
			Str("from", from).
			Str("to", target.ConnectionID).
			Msg("Failed to relay signal")
		metrics.Relayed.WithLabelValues(kind, SendFailed.String()).Inc()
		return SendFailed
	}
	log.Debug().
		Str("type", kind).
		Str("meeting_id", meetingID).
		Str("from", from).
		Str("to", target.ConnectionID).
		Str("role", string(target.Role)).
		Msg("Relayed signal")
	metrics.Relayed.WithLabelValues(kind, Delivered.String()).Inc()
	return Delivered
}
