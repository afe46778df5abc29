package server

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/diagno/callsignal/internal/signaling"
)

// NewStatsReporter schedules a periodic summary of the hub's rooms. The
// returned scheduler is not started.
func NewStatsReporter(hub *signaling.Hub, schedule string) (*cron.Cron, error) {
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	if _, err := quartz.AddFunc(schedule, func() { ReportStats(hub) }); err != nil {
		return nil, err
	}
	return quartz, nil
}

// ReportStats logs one summary line and refreshes the room gauges.
func ReportStats(hub *signaling.Hub) signaling.Stats {
	st := hub.Stats()
	log.Info().
		Int("rooms", st.Rooms).
		Int("participants", st.Participants).
		Int("ready", st.Ready).
		Int("paired", st.Paired).
		Msg("Signaling stats")
	return st
}
