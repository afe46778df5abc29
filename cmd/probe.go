package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/diagno/callsignal/internal/probe"
	"github.com/diagno/callsignal/internal/ui"
)

var flagMeeting string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check a running server end to end with a real WebRTC call",
	Long: `Join a meeting as both doctor and patient, exchange offer, answer and ICE
candidates through the server and wait until the two peers are connected.

Examples:
  callsignal probe
  callsignal probe --server https://signal.example.com --meeting apt-1700000000-x1y2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		wsURL, err := cfg.WebSocketURL()
		if err != nil {
			return err
		}

		sp := ui.RunConnectionSpinner("Connecting to signaling server...")
		report, err := probe.Run(cmd.Context(), probe.Options{
			ServerURL: wsURL,
			MeetingID: flagMeeting,
			STUN:      cfg.Probe.STUN,
			Timeout:   cfg.Probe.Timeout,
			OnStage:   sp.UpdateMessage,
		})
		sp.Stop()
		if err != nil {
			return err
		}

		ui.PrintSuccess(fmt.Sprintf("Peers connected through %s", wsURL))
		if report.SelectedPair == "" {
			ui.PrintWarning("Connected, but no selected candidate pair was reported")
		}
		ui.RenderProbeSummary(ui.ProbeSummary{
			Status:        "connected",
			MeetingID:     report.MeetingID,
			Doctor:        report.DoctorConn,
			Patient:       report.PatientConn,
			JoinLatency:   report.JoinLatency.Round(time.Millisecond).String(),
			ConnectTime:   report.ConnectTime.Round(time.Millisecond).String(),
			DoctorICE:     report.DoctorCandidates,
			PatientICE:    report.PatientCandidates,
			SelectedRoute: report.SelectedPair,
		})
		return nil
	},
}

func init() {
	flags := probeCmd.Flags()
	flags.StringSlice("stun", nil, "STUN server URLs")
	flags.Duration("timeout", 0, "give up after this long")
	flags.StringVar(&flagMeeting, "meeting", "", "meeting id to use (default: a fresh probe meeting)")

	mustBind("probe.stun", flags.Lookup("stun"))
	mustBind("probe.timeout", flags.Lookup("timeout"))

	rootCmd.AddCommand(probeCmd)
}
