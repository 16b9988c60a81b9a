// Package report renders a batch outcome for the operator.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/nhle/mailscript/internal/dispatch"
	"github.com/nhle/mailscript/internal/theme"
)

var headers = []string{"ID", "STATUS", "THREAD", "MESSAGE-ID", "NOTES"}

const (
	colStatus = 1
	colThread = 2
	colNotes  = 4
)

// Render writes the summary line and a per-email table to w.
func Render(w io.Writer, r *dispatch.Report) error {
	if _, err := fmt.Fprintln(w, theme.HeaderStyle.Render(r.Summary())); err != nil {
		return err
	}
	if len(r.Outcomes) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		rows = append(rows, row(o))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(theme.ColorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(rowIdx, col int) lipgloss.Style {
			if rowIdx == table.HeaderRow {
				return theme.TableHeaderStyle
			}
			o := r.Outcomes[rowIdx]
			switch col {
			case colStatus:
				return theme.StatusStyle(string(o.Status))
			case colThread:
				return theme.ThreadStyle(o.Threaded, o.Fallback != "")
			case colNotes:
				return theme.HelpStyle.Padding(0, 1)
			default:
				return theme.CellStyle
			}
		})

	_, err := fmt.Fprintln(w, t.String())
	return err
}

func row(o dispatch.Outcome) []string {
	thread := "-"
	switch {
	case o.Threaded:
		thread = "reply to " + o.Anchor
	case o.Fallback != "":
		thread = "unthreaded"
	}

	return []string{o.ID, string(o.Status), thread, o.RFCMessageID, notes(o)}
}

// notes joins the degraded and failed details of an outcome.
func notes(o dispatch.Outcome) string {
	var parts []string
	if o.Err != nil {
		parts = append(parts, o.Err.Error())
	}
	if o.Fallback != "" {
		parts = append(parts, o.Fallback)
	}
	if len(o.Dropped) > 0 {
		parts = append(parts, "dropped: "+strings.Join(o.Dropped, ", "))
	}
	return strings.Join(parts, "; ")
}
