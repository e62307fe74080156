package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pingpong/internal/message"
	"pingpong/internal/shared"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Width(12)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// summary describes a finished client run.
type summary struct {
	Server    string
	Mode      shared.Mode
	Requested uint32
	Request   *message.Request
	Responses []*message.Response
	Elapsed   time.Duration
	State     string
	Err       error
}

// matched counts responses that answer the request that was sent.
func (s summary) matched() int {
	n := 0
	for _, r := range s.Responses {
		if r.Correlates(s.Request) {
			n++
		}
	}
	return n
}

func renderSummary(s summary) string {
	requested := "forever"
	if s.Requested > 0 {
		requested = fmt.Sprint(s.Requested)
	}

	rows := [][2]string{
		{"server", s.Server},
		{"mode", s.Mode.String()},
		{"requested", requested},
		{"received", fmt.Sprint(len(s.Responses))},
		{"correlated", fmt.Sprint(s.matched())},
		{"elapsed", s.Elapsed.Round(time.Millisecond).String()},
		{"state", s.State},
	}
	if len(s.Responses) > 0 {
		rows = append(rows, [2]string{"last reply", s.Responses[len(s.Responses)-1].Data})
	}

	lines := make([]string, 0, len(rows)+1)
	for _, row := range rows {
		lines = append(lines, labelStyle.Render(row[0])+row[1])
	}
	if s.Err != nil {
		lines = append(lines, errorStyle.Render("error: "+s.Err.Error()))
	} else {
		lines = append(lines, okStyle.Render("ok"))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("pingpong client"),
		boxStyle.Render(strings.Join(lines, "\n")),
	)
}
