package probe

import (
	"context"
	"encoding/json"
	"sync"

	jsoniter "github.com/json-iterator/go"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/diagno/callsignal/internal/signaling"
)

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

func newPeerConnection(stun []string) (*pion.PeerConnection, error) {
	var cfg pion.Configuration
	if len(stun) > 0 {
		cfg.ICEServers = []pion.ICEServer{{URLs: stun}}
	}
	pc, err := pion.NewPeerConnection(cfg)
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}

// peer is one side of the probe call. It reacts to server messages the way
// a browser client would.
type peer struct {
	role      signaling.Role
	meetingID string
	client    *Client
	pc        *pion.PeerConnection

	mu          sync.Mutex
	remoteSet   bool
	pending     []pion.ICECandidateInit
	candidates  int
	self        string
	counterpart string

	started     chan signaling.StartCallPayload
	connected   chan struct{}
	errs        chan error
	startOnce   sync.Once
	connectOnce sync.Once
}

func newPeer(role signaling.Role, meetingID string, client *Client, pc *pion.PeerConnection) *peer {
	p := &peer{
		role:      role,
		meetingID: meetingID,
		client:    client,
		pc:        pc,
		started:   make(chan signaling.StartCallPayload, 1),
		connected: make(chan struct{}),
		errs:      make(chan error, 4),
	}

	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := wire.Marshal(c.ToJSON())
		if err != nil {
			p.fail(NewError("encode ICE candidate", err))
			return
		}
		if err := client.Send(signaling.TypeIceCandidate, signaling.IceCandidatePayload{
			Candidate: raw,
			MeetingID: meetingID,
		}); err != nil {
			return
		}
		p.mu.Lock()
		p.candidates++
		p.mu.Unlock()
	})

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Debug().Str("role", string(role)).Str("state", state.String()).Msg("ICE connection state changed")
		switch state {
		case pion.ICEConnectionStateConnected, pion.ICEConnectionStateCompleted:
			p.connectOnce.Do(func() { close(p.connected) })
		case pion.ICEConnectionStateFailed:
			p.fail(&OpError{Op: "connect", Role: string(role), Err: ErrICEFailed})
		}
	})

	return p
}

func (p *peer) fail(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

func (p *peer) join(clientID string) error {
	return p.client.Send(signaling.TypeJoinRoom, signaling.JoinRoomPayload{
		MeetingID: p.meetingID,
		Role:      p.role,
		ClientID:  clientID,
	})
}

// run dispatches server messages until the connection closes or ctx ends.
func (p *peer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.client.Incoming():
			if !ok {
				return
			}
			if err := p.handle(msg); err != nil {
				p.fail(err)
			}
		}
	}
}

func (p *peer) handle(msg *signaling.Message) error {
	switch msg.Type {
	case signaling.TypeJoinedRoom:
		return p.client.Send(signaling.TypeReadyForCall, signaling.ReadyForCallPayload{MeetingID: p.meetingID})

	case signaling.TypeRoomError:
		var payload signaling.RoomErrorPayload
		_ = msg.Decode(&payload)
		return &OpError{Op: "join", Role: string(p.role), Err: ErrRoomError, Details: payload.Message}

	case signaling.TypeForceDisconnect:
		var payload signaling.ForceDisconnectPayload
		_ = msg.Decode(&payload)
		return &OpError{Op: "join", Role: string(p.role), Err: ErrForceDisconnected, Details: payload.Message}

	case signaling.TypeUserDisconnected:
		return &OpError{Op: "call", Role: string(p.role), Err: ErrPeerDisconnected}

	case signaling.TypeStartCall:
		var payload signaling.StartCallPayload
		if err := msg.Decode(&payload); err != nil {
			return NewError("decode start-call", err)
		}
		p.mu.Lock()
		p.self = payload.ConnFor(p.role)
		p.counterpart = payload.ConnFor(p.role.Counterpart())
		p.mu.Unlock()
		p.startOnce.Do(func() { p.started <- payload })
		if p.role == signaling.RoleDoctor {
			return p.sendOffer()
		}
		return nil

	case signaling.TypeOffer:
		var payload signaling.OfferPayload
		if err := msg.Decode(&payload); err != nil {
			return NewError("decode offer", err)
		}
		if err := p.checkSender("handle offer", payload.From); err != nil {
			return err
		}
		return p.answerOffer(payload.Offer)

	case signaling.TypeAnswer:
		var payload signaling.AnswerPayload
		if err := msg.Decode(&payload); err != nil {
			return NewError("decode answer", err)
		}
		if err := p.checkSender("handle answer", payload.From); err != nil {
			return err
		}
		var desc pion.SessionDescription
		if err := wire.Unmarshal(payload.Answer, &desc); err != nil {
			return NewError("parse answer", err)
		}
		if desc.Type != pion.SDPTypeAnswer {
			return WrapError("handle answer", ErrUnexpectedSignal, desc.Type.String())
		}
		return p.setRemote(desc)

	case signaling.TypeIceCandidate:
		var payload signaling.IceCandidatePayload
		if err := msg.Decode(&payload); err != nil {
			return NewError("decode ice-candidate", err)
		}
		return p.addCandidate(payload.Candidate)
	}
	return nil
}

// checkSender rejects signals relayed from anyone but the counterpart named
// in start-call.
func (p *peer) checkSender(op, from string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counterpart == "" || from == p.counterpart {
		return nil
	}
	return &OpError{Op: op, Role: string(p.role), Err: ErrUnexpectedSignal, Details: "from " + from + ", self " + p.self}
}

func (p *peer) sendOffer() error {
	// An offer needs at least one m-section; a data channel is the cheapest.
	if _, err := p.pc.CreateDataChannel("probe", nil); err != nil {
		return NewError("create data channel", err)
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return NewError("set local description", err)
	}
	raw, err := wire.Marshal(p.pc.LocalDescription())
	if err != nil {
		return NewError("encode offer", err)
	}
	return p.client.Send(signaling.TypeOffer, signaling.OfferPayload{Offer: raw, MeetingID: p.meetingID})
}

func (p *peer) answerOffer(raw json.RawMessage) error {
	var offer pion.SessionDescription
	if err := wire.Unmarshal(raw, &offer); err != nil {
		return NewError("parse offer", err)
	}
	if offer.Type != pion.SDPTypeOffer {
		return WrapError("handle offer", ErrUnexpectedSignal, offer.Type.String())
	}
	if err := p.setRemote(offer); err != nil {
		return err
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return NewError("create answer", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return NewError("set local description", err)
	}
	out, err := wire.Marshal(p.pc.LocalDescription())
	if err != nil {
		return NewError("encode answer", err)
	}
	return p.client.Send(signaling.TypeAnswer, signaling.AnswerPayload{Answer: out, MeetingID: p.meetingID})
}

// setRemote applies desc and flushes candidates that arrived before it.
func (p *peer) setRemote(desc pion.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return NewError("set remote description", err)
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			return NewError("add ICE candidate", err)
		}
	}
	return nil
}

func (p *peer) addCandidate(raw json.RawMessage) error {
	var ice pion.ICECandidateInit
	if err := wire.Unmarshal(raw, &ice); err != nil {
		return NewError("parse ICE candidate", err)
	}

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, ice)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(ice); err != nil {
		return NewError("add ICE candidate", err)
	}
	return nil
}

func (p *peer) sentCandidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.candidates
}

func (p *peer) selectedPair() string {
	sctp := p.pc.SCTP()
	if sctp == nil || sctp.Transport() == nil {
		return ""
	}
	pair, err := sctp.Transport().ICETransport().GetSelectedCandidatePair()
	if err != nil || pair == nil {
		return ""
	}
	return pair.String()
}
