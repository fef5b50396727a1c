package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const messageWidth = 48

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

func statusLabel(s storage.DeliveryStatus) string {
	switch s {
	case storage.DeliverySent:
		return okStyle.Render(string(s))
	case storage.DeliveryFailed:
		return errorStyle.Render(string(s))
	default:
		return warnStyle.Render(string(s))
	}
}

func renderDeliveries(w io.Writer, records []*storage.DeliveryRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No deliveries found."))
		return
	}
	t := newTable("ID", "Recipient", "Template", "Channel", "Status", "Message", "Updated")
	for _, r := range records {
		t.Row(
			fmt.Sprintf("%d", r.ID),
			fmt.Sprintf("%s:%d", r.NotifiableType, r.NotifiableID),
			fmt.Sprintf("%d", r.TemplateID),
			r.Channel,
			statusLabel(r.Status),
			truncate(r.Message, messageWidth),
			r.UpdatedAt.Local().Format(time.DateTime),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func renderTemplates(w io.Writer, templates []*storage.Template) {
	if len(templates) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No templates found."))
		return
	}
	t := newTable("ID", "Code", "Name", "Status", "Channels", "Variables")
	for _, tmpl := range templates {
		status := okStyle.Render(string(tmpl.Status))
		if !tmpl.Enabled() {
			status = mutedStyle.Render(string(tmpl.Status))
		}
		t.Row(
			fmt.Sprintf("%d", tmpl.ID),
			tmpl.Code,
			tmpl.Name,
			status,
			strings.Join(tmpl.Channels, ", "),
			strings.Join(tmpl.Variables, ", "),
		)
	}
	fmt.Fprintln(w, t.Render())
}

func renderJobs(w io.Writer, jobs []notification.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No channel accepted the notification. See the system log for skip reasons."))
		return
	}
	t := newTable("Job", "Channel", "Template")
	for _, j := range jobs {
		t.Row(j.ID, j.Channel, fmt.Sprintf("%d", j.TemplateID))
	}
	fmt.Fprintln(w, t.Render())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
