package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RoomRow is one participant line in the rooms table.
type RoomRow struct {
	MeetingID    string
	ConnectionID string
	Role         string
	ClientID     string
	Status       string
	JoinedAt     string
}

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// RoomsTableView renders active rooms, one row per participant.
func RoomsTableView(items []RoomRow) string {
	if len(items) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		icon := IconPatient
		if item.Role == "Doctor" {
			icon = IconDoctor
		}
		rows = append(rows, []string{
			item.MeetingID,
			icon + " " + item.Role,
			item.ConnectionID,
			item.ClientID,
			item.Status,
			item.JoinedAt,
		})
	}

	title := TitleStyle.Render(IconRoom + " Active rooms")
	body := styledTable([]string{"Meeting", "Role", "Connection", "Client", "Status", "Joined"}, rows).Render()
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

func RenderRoomsTable(items []RoomRow) {
	fmt.Println(RoomsTableView(items))
}

type ProbeSummary struct {
	Status        string
	MeetingID     string
	Doctor        string
	Patient       string
	JoinLatency   string
	ConnectTime   string
	DoctorICE     int
	PatientICE    int
	SelectedRoute string
}

func ProbeSummaryView(summary ProbeSummary) string {
	rows := [][]string{
		{"Status", summary.Status},
		{"Meeting", summary.MeetingID},
		{"Doctor", summary.Doctor},
		{"Patient", summary.Patient},
		{"Join latency", summary.JoinLatency},
		{"ICE connected after", summary.ConnectTime},
		{"Doctor candidates", fmt.Sprintf("%d", summary.DoctorICE)},
		{"Patient candidates", fmt.Sprintf("%d", summary.PatientICE)},
	}
	if summary.SelectedRoute != "" {
		rows = append(rows, []string{"Selected pair", summary.SelectedRoute})
	}
	return styledTable([]string{"Metric", "Value"}, rows).Render()
}

func RenderProbeSummary(summary ProbeSummary) {
	fmt.Println(ProbeSummaryView(summary))
}
