package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/codemage/internal/events"
	"github.com/fyrsmithlabs/codemage/internal/generator"
	"github.com/fyrsmithlabs/codemage/internal/hostdir"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	previewStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

func field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

func renderResult(res generator.Result) string {
	var b strings.Builder

	switch res.Outcome {
	case generator.OutcomePending:
		b.WriteString(titleStyle.Render("Proposal ready") + "\n")
		b.WriteString(previewStyle.Render(res.Preview) + "\n")
		b.WriteString(dimStyle.Render("Run `codemage confirm` to build it, `codemage confirm --feedback ...` to refine, or `codemage reject`."))
		return b.String()

	case generator.OutcomeSuccess:
		b.WriteString(okStyle.Render("✓ Plugin generated") + "\n")
		b.WriteString(field("Name", res.PluginName) + "\n")
		b.WriteString(field("Path", res.PluginPath) + "\n")
		if res.Review != nil {
			b.WriteString(field("Review", fmt.Sprintf("%d/100, %d retries", res.Review.SatisfactionScore, res.Retries)) + "\n")
		}
		for _, issue := range res.SafetyIssues {
			b.WriteString(warnStyle.Render("! ") + issue + "\n")
		}
		switch {
		case res.Installed:
			line := okStyle.Render("✓ Installed")
			if res.InstallStatus != nil && res.InstallStatus.HasErrors {
				line = warnStyle.Render("! Installed with errors")
			}
			b.WriteString(line + "\n")
			if res.InstallStatus != nil {
				for _, l := range res.InstallStatus.ErrorLogs {
					b.WriteString(dimStyle.Render("  "+l) + "\n")
				}
			}
		case res.InstallError != nil:
			b.WriteString(warnStyle.Render("! Install failed: ") + res.InstallError.Detail + "\n")
			b.WriteString(dimStyle.Render("  Retry with `codemage plugins install "+res.PluginName+"`") + "\n")
		}
		return strings.TrimRight(b.String(), "\n")

	case generator.OutcomeCancelled:
		return warnStyle.Render("Generation cancelled")

	case generator.OutcomeNoPending:
		return dimStyle.Render("No pending proposal")

	default:
		msg := errStyle.Render("✗ " + string(res.Kind))
		if res.Detail != "" {
			msg += " " + res.Detail
		}
		return msg
	}
}

func renderStatus(st generator.Status) string {
	if !st.IsGenerating {
		return dimStyle.Render("Idle")
	}
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Generating %s", st.PluginName)),
		field("Step", fmt.Sprintf("%d/%d %s", st.CurrentStep, st.TotalSteps, st.StepName)),
		field("Progress", progressBar(st.ProgressPercentage, 30)),
	}
	if !st.StartTime.IsZero() {
		lines = append(lines, field("Elapsed", time.Since(st.StartTime).Round(time.Second).String()))
	}
	return strings.Join(lines, "\n")
}

func progressBar(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	return okStyle.Render(strings.Repeat("█", filled)) +
		dimStyle.Render(strings.Repeat("░", width-filled)) +
		fmt.Sprintf(" %d%%", pct)
}

func renderPending(p generator.Pending) string {
	if !p.Active {
		return dimStyle.Render("No pending proposal")
	}
	lines := []string{
		titleStyle.Render("Pending proposal " + p.ID),
		field("Requested", p.Timestamp.Format(time.DateTime)),
		field("Origin", p.Origin),
		field("Description", p.Description),
		previewStyle.Render(p.Preview),
	}
	return strings.Join(lines, "\n")
}

func renderEvent(e events.Event) string {
	ts := dimStyle.Render(e.Time.Format(time.TimeOnly))
	var tag string
	switch e.Type {
	case events.TypeCompleted, events.TypeInstalled, events.TypeReviewPassed:
		tag = okStyle.Render(string(e.Type))
	case events.TypeFailed:
		tag = errStyle.Render(string(e.Type))
	case events.TypeWarning, events.TypeReviewRetry, events.TypeCancelled:
		tag = warnStyle.Render(string(e.Type))
	default:
		tag = labelStyle.Render(string(e.Type))
	}
	if e.Type == events.TypeStage {
		tag += dimStyle.Render(fmt.Sprintf(" [%d/%d]", e.Step, e.TotalSteps))
	}
	msg := e.Message
	if e.Type == events.TypePreview {
		msg = "\n" + previewStyle.Render(msg)
	}
	return fmt.Sprintf("%s %s %s", ts, tag, msg)
}

func renderPlugins(root string, plugins []hostdir.LocalPlugin) string {
	if len(plugins) == 0 {
		return dimStyle.Render("No plugins in " + root)
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("%d plugins in %s", len(plugins), root))}
	for _, p := range plugins {
		line := "  " + p.Name
		if p.Desc != "" {
			line += dimStyle.Render("  " + p.Desc)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
