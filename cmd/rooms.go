package cmd

import (
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/diagno/callsignal/internal/signaling"
	"github.com/diagno/callsignal/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List active rooms on a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := cfg.APIURL("/api/rooms")
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch rooms: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch rooms: unexpected status %s", resp.Status)
		}

		var rooms []signaling.RoomSnapshot
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(resp.Body).Decode(&rooms); err != nil {
			return fmt.Errorf("decode rooms: %w", err)
		}

		ui.PrintInfo(fmt.Sprintf("%d active room(s) on %s", len(rooms), cfg.Probe.Server))
		ui.RenderRoomsTable(roomRows(rooms))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}

func roomRows(rooms []signaling.RoomSnapshot) []ui.RoomRow {
	var rows []ui.RoomRow
	for _, room := range rooms {
		for _, p := range room.Participants {
			rows = append(rows, ui.RoomRow{
				MeetingID:    room.MeetingID,
				ConnectionID: p.ConnectionID,
				Role:         string(p.Role),
				ClientID:     p.ClientID,
				Status:       string(p.Status),
				JoinedAt:     p.JoinedAt.Local().Format("15:04:05"),
			})
		}
	}
	return rows
}
