// Package ui renders tasks and sync state for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/tasksync/tasksync/internal/schema"
	"github.com/tasksync/tasksync/internal/status"
)

// Column widths of the task table.
const (
	idWidth       = 22
	titleWidth    = 40
	statusWidth   = 12
	levelWidth    = 8
	priorityWidth = 5
	dueWidth      = 11
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Renderer draws tasks with colors suited to its output.
type Renderer struct {
	header  lipgloss.Style
	muted   lipgloss.Style
	pending lipgloss.Style
	states  map[status.Status]lipgloss.Style
	tasks   map[schema.Status]lipgloss.Style
	levels  map[schema.PriorityLevel]lipgloss.Style
}

// NewRenderer returns a renderer for w. Without color every style renders
// plain text, which is what pipes and tests get.
func NewRenderer(w io.Writer, color bool) *Renderer {
	profile := termenv.Ascii
	if color && !termenv.EnvNoColor() {
		profile = termenv.EnvColorProfile()
	}
	r := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	r.SetColorProfile(profile)

	fg := func(c string) lipgloss.Style {
		return r.NewStyle().Foreground(lipgloss.Color(c))
	}
	return &Renderer{
		header:  r.NewStyle().Bold(true).Underline(true),
		muted:   fg("243"),
		pending: fg("214").Italic(true),
		states: map[status.Status]lipgloss.Style{
			status.Online:  fg("42").Bold(true),
			status.Offline: fg("245").Bold(true),
			status.Syncing: fg("33").Bold(true),
			status.Error:   fg("196").Bold(true),
		},
		tasks: map[schema.Status]lipgloss.Style{
			schema.StatusTodo:       fg("252"),
			schema.StatusInProgress: fg("33"),
			schema.StatusDone:       fg("42").Strikethrough(true),
		},
		levels: map[schema.PriorityLevel]lipgloss.Style{
			schema.PriorityLow:    fg("245"),
			schema.PriorityMedium: fg("214"),
			schema.PriorityHigh:   fg("196").Bold(true),
		},
	}
}

// Status renders a sync status badge such as "● online".
func (u *Renderer) Status(s status.Status) string {
	style, ok := u.states[s]
	if !ok {
		style = u.muted
	}
	return style.Render("● " + string(s))
}

// Tasks renders a page of tasks as a table. Tasks carrying a temporary id
// are marked as not yet synced.
func (u *Renderer) Tasks(page schema.Page, isTemp func(string) bool) string {
	if len(page.Items) == 0 {
		return u.muted.Render("No tasks.") + "\n"
	}

	var b strings.Builder
	b.WriteString(u.row(u.header, u.header, u.header, u.header,
		"ID", "TITLE", "STATUS", "LEVEL", "PRIO", "DUE"))
	for _, t := range page.Items {
		idStyle := u.muted
		id := t.ID
		if isTemp != nil && isTemp(t.ID) {
			idStyle = u.pending
			id = t.ID + "*"
		}
		statusStyle, ok := u.tasks[t.Status]
		if !ok {
			statusStyle = u.muted
		}
		levelStyle, ok := u.levels[t.PriorityLevel]
		if !ok {
			levelStyle = u.muted
		}
		prio := ""
		if t.Priority != nil {
			prio = strconv.Itoa(*t.Priority)
		}
		b.WriteString(u.row(idStyle, statusStyle, levelStyle, u.muted,
			id, t.Title, string(t.Status), string(t.PriorityLevel), prio, dueDay(t.DueDate)))
	}
	fmt.Fprintf(&b, "%s\n", u.muted.Render(fmt.Sprintf("%d of %d tasks", len(page.Items), page.Total)))
	return b.String()
}

func (u *Renderer) row(idStyle, statusStyle, levelStyle, restStyle lipgloss.Style, id, title, st, level, prio, due string) string {
	cells := []string{
		idStyle.Width(idWidth).Render(truncate(id, idWidth-1)),
		restStyle.Width(titleWidth).Render(truncate(title, titleWidth-1)),
		statusStyle.Width(statusWidth).Render(st),
		levelStyle.Width(levelWidth).Render(level),
		restStyle.Width(priorityWidth).Render(prio),
		restStyle.Width(dueWidth).Render(due),
	}
	return strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " ") + "\n"
}

// Task renders one task as labelled lines.
func (u *Renderer) Task(t schema.Task) string {
	label := u.muted.Width(13)
	lines := []string{
		label.Render("id") + t.ID,
		label.Render("title") + t.Title,
		label.Render("status") + string(t.Status),
		label.Render("level") + string(t.PriorityLevel),
	}
	if t.Priority != nil {
		lines = append(lines, label.Render("priority")+strconv.Itoa(*t.Priority))
	}
	if t.Description != "" {
		lines = append(lines, label.Render("description")+t.Description)
	}
	if t.DueDate != "" {
		lines = append(lines, label.Render("due")+t.DueDate)
	}
	if t.UpdatedAt != "" {
		lines = append(lines, label.Render("updated")+t.UpdatedAt)
	}
	return strings.Join(lines, "\n") + "\n"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}

// dueDay shortens an RFC3339 due date to its day.
func dueDay(s string) string {
	if len(s) > len(schema.DateLayout) {
		return s[:len(schema.DateLayout)]
	}
	return s
}
