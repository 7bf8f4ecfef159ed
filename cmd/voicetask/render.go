package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/voicetask/internal/pipeline"
	"github.com/fyrsmithlabs/voicetask/internal/tasks"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	levelLow      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	levelNormal   = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // Blue
	levelHigh     = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	levelVeryHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func levelStyle(r tasks.Record) lipgloss.Style {
	switch r.Level() {
	case "low":
		return levelLow
	case "high":
		return levelHigh
	case "very high":
		return levelVeryHigh
	default:
		return levelNormal
	}
}

func renderTask(w io.Writer, index int, r tasks.Record) {
	line := fmt.Sprintf("%3d  %s  %s",
		index,
		levelStyle(r).Render(fmt.Sprintf("%-9s", r.Criticality)),
		r.Description)
	var meta []string
	if r.DueDate != "" {
		meta = append(meta, r.DueDate)
	}
	if r.Category != "" {
		meta = append(meta, r.Category)
	}
	if len(meta) > 0 {
		line += "  " + dimStyle.Render(strings.Join(meta, " · "))
	}
	fmt.Fprintln(w, line)
}

func renderTasks(w io.Writer, records []tasks.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No tasks."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Tasks (%d)", len(records))))
	for i, r := range records {
		renderTask(w, i, r)
	}
}

func renderResult(w io.Writer, res pipeline.Result) {
	if res.Transcript != "" {
		fmt.Fprintln(w, titleStyle.Render("Transcript"))
		fmt.Fprintln(w, res.Transcript)
		fmt.Fprintln(w)
	}
	if len(res.Tasks) > 0 {
		fmt.Fprintln(w, titleStyle.Render("New tasks"))
		for i, r := range res.Tasks {
			renderTask(w, i, r)
		}
		fmt.Fprintln(w)
	}
	if res.Sync != nil {
		if res.Sync.Err != nil {
			fmt.Fprintln(w, errorStyle.Render(res.Sync.Message))
		} else {
			fmt.Fprintln(w, dimStyle.Render(res.Sync.Message))
		}
	}
	fmt.Fprintln(w, okStyle.Render(res.Status))
}

// mask keeps the last four characters of a secret.
func mask(v string) string {
	if v == "" {
		return dimStyle.Render("(not set)")
	}
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", 8) + v[len(v)-4:]
}
