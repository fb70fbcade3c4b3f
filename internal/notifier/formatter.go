package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"ProfilePilot/internal/model"
)

var statusIcon = map[model.CycleStatus]string{
	model.CycleCompleted: "✅",
	model.CycleStopped:   "⏹",
	model.CycleFailed:    "❌",
}

// FormatCycleReport renders a persisted cycle report as a Telegram message.
func FormatCycleReport(r model.CycleTelemetry) string {
	var b strings.Builder

	icon := statusIcon[r.Status]
	id := r.CycleID
	if len(id) > 8 {
		id = id[:8]
	}
	b.WriteString(fmt.Sprintf("%s <b>Cycle %s</b> | %s\n", icon, id, r.FinishedAt.UTC().Format("2006-01-02 15:04 UTC")))
	if r.AdHoc {
		b.WriteString("ad-hoc pass (no enabled profiles)\n")
	}
	b.WriteString(fmt.Sprintf("processed %d · executed %d · failed %d\n", r.Processed, r.Executed, r.Failed))
	b.WriteString(fmt.Sprintf("gate <b>%s</b> · matrix <b>%s</b>\n\n", r.Gate.Status, r.Matrix.Status))

	for _, p := range r.Profiles {
		name := p.ProfileName
		if name == "" {
			name = p.ProfileID
		}
		if name == "" {
			name = "ad-hoc"
		}
		e := p.Execution
		b.WriteString(fmt.Sprintf("• %s: %s", html.EscapeString(name), p.Status))
		if p.Processed() {
			b.WriteString(fmt.Sprintf(" | %d/%d symbols, %d proposed, ok %d fail %d, skip cd %d cap %d risk %d val %d",
				p.ActualSymbols, p.ExpectedSymbols, p.Proposed, e.OK, e.Failed,
				e.SkippedCooldown, e.SkippedOpenCap, e.SkippedRisk, e.SkippedValidation))
		}
		if p.Detail != "" {
			b.WriteString(" (" + html.EscapeString(p.Detail) + ")")
		}
		b.WriteString("\n")
	}

	if len(r.RejectHistogram) > 0 {
		keys := make([]string, 0, len(r.RejectHistogram))
		for k := range r.RejectHistogram {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\nrejects:")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(" %s=%d", k, r.RejectHistogram[k]))
		}
		b.WriteString("\n")
	}
	if r.Error != "" {
		b.WriteString("\n⚠️ " + html.EscapeString(r.Error) + "\n")
	}
	return b.String()
}
