// Package probe runs a doctor and a patient through a live signaling server
// and reports whether a real WebRTC connection could be negotiated.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/diagno/callsignal/internal/signaling"
)

type Options struct {
	// ServerURL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	ServerURL string

	// MeetingID defaults to a fresh probe meeting.
	MeetingID string

	STUN    []string
	Timeout time.Duration

	// OnStage is called as the probe advances.
	OnStage func(stage string)
}

type Report struct {
	MeetingID         string
	DoctorConn        string
	PatientConn       string
	JoinLatency       time.Duration
	ConnectTime       time.Duration
	DoctorCandidates  int
	PatientCandidates int
	SelectedPair      string
}

// NewMeetingID follows the <prefix>-<timestamp>-<random> convention used by
// the booking service.
func NewMeetingID() string {
	return fmt.Sprintf("probe-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Run joins the meeting as both roles, waits for start-call, negotiates a
// peer connection through the relay and waits for ICE to connect.
func Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.MeetingID == "" {
		opts.MeetingID = NewMeetingID()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	stage := opts.OnStage
	if stage == nil {
		stage = func(string) {}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	report := &Report{MeetingID: opts.MeetingID}
	begin := time.Now()

	stage("Connecting to signaling server...")
	doctor, err := openPeer(ctx, signaling.RoleDoctor, opts)
	if err != nil {
		return nil, err
	}
	defer doctor.close()

	patient, err := openPeer(ctx, signaling.RolePatient, opts)
	if err != nil {
		return nil, err
	}
	defer patient.close()

	go doctor.run(ctx)
	go patient.run(ctx)

	stage("Joining meeting " + opts.MeetingID + "...")
	if err := doctor.join("probe-doctor"); err != nil {
		return nil, &OpError{Op: "join", Role: string(signaling.RoleDoctor), Err: err}
	}
	if err := patient.join("probe-patient"); err != nil {
		return nil, &OpError{Op: "join", Role: string(signaling.RolePatient), Err: err}
	}

	for _, p := range []*peer{doctor, patient} {
		select {
		case sc := <-p.started:
			report.DoctorConn, report.PatientConn = sc.Doctor, sc.Patient
		case err := <-doctor.errs:
			return nil, err
		case err := <-patient.errs:
			return nil, err
		case <-ctx.Done():
			return nil, &OpError{Op: "wait start-call", Role: string(p.role), Err: ErrTimeout}
		}
	}
	report.JoinLatency = time.Since(begin)
	log.Debug().Str("meeting_id", opts.MeetingID).Dur("latency", report.JoinLatency).Msg("Call started")

	stage("Negotiating peer connection...")
	started := time.Now()
	for _, p := range []*peer{doctor, patient} {
		select {
		case <-p.connected:
		case err := <-doctor.errs:
			return nil, err
		case err := <-patient.errs:
			return nil, err
		case <-ctx.Done():
			return nil, &OpError{Op: "connect", Role: string(p.role), Err: ErrTimeout}
		}
	}
	report.ConnectTime = time.Since(started)
	report.DoctorCandidates = doctor.sentCandidates()
	report.PatientCandidates = patient.sentCandidates()
	report.SelectedPair = doctor.selectedPair()

	return report, nil
}

func openPeer(ctx context.Context, role signaling.Role, opts Options) (*peer, error) {
	client, err := Dial(ctx, opts.ServerURL)
	if err != nil {
		return nil, &OpError{Op: "connect to server", Role: string(role), Err: err}
	}
	pc, err := newPeerConnection(opts.STUN)
	if err != nil {
		client.Close()
		return nil, err
	}
	return newPeer(role, opts.MeetingID, client, pc), nil
}

func (p *peer) close() {
	if err := p.pc.Close(); err != nil {
		log.Debug().Err(err).Str("role", string(p.role)).Msg("Error closing peer connection")
	}
	p.client.Close()
}
