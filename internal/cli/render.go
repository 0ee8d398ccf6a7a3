package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/prover"
)

var (
	provedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	failedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	transitionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func validFormat(f string, allowText bool) error {
	switch f {
	case formatJSON, formatYAML:
		return nil
	case formatText:
		if allowText {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q", f)
}

// writeRecord encodes an attempt record as JSON or YAML.
func writeRecord(w io.Writer, rec any, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// renderOutcome is the human-readable verdict on one attempt.
func renderOutcome(rec *domain.AttemptRecord) string {
	var b strings.Builder
	label := rec.Name
	if label == "" {
		label = string(rec.Task.Kind)
	}
	meta := metaStyle.Render(fmt.Sprintf("(%d step(s), %s, id %s)", rec.Steps, rec.Duration().Round(time.Millisecond), rec.ID))

	if rec.Proved() {
		fmt.Fprintf(&b, "%s %s %s\n", provedStyle.Render("✔ PROVED"), label, meta)
	} else {
		verdict := "✘ " + string(rec.State)
		if rec.Reason != prover.ReasonNone {
			verdict += " (" + string(rec.Reason) + ")"
		}
		fmt.Fprintf(&b, "%s %s %s\n", failedStyle.Render(verdict), label, meta)
		if rec.Error != "" {
			fmt.Fprintf(&b, "%s\n", errorStyle.Render(rec.Error))
		}
	}
	if strings.TrimSpace(rec.Source) != "" {
		fmt.Fprintf(&b, "%s\n", codeStyle.Render(strings.TrimRight(rec.Source, "\n")))
	}
	return b.String()
}

// renderBatch summarizes a batch, one line per task.
func renderBatch(recs []*domain.AttemptRecord) string {
	var b strings.Builder
	proved := 0
	for _, rec := range recs {
		label := rec.Name
		if label == "" {
			label = rec.ID
		}
		status := failedStyle.Render(fmt.Sprintf("%-8s", rec.State))
		if rec.Proved() {
			proved++
			status = provedStyle.Render(fmt.Sprintf("%-8s", rec.State))
		}
		detail := fmt.Sprintf("%d step(s)", rec.Steps)
		if rec.Reason != prover.ReasonNone {
			detail += ", " + string(rec.Reason)
		}
		fmt.Fprintf(&b, "%s %s %s\n", status, label, metaStyle.Render(detail))
	}
	fmt.Fprintf(&b, "%s\n", metaStyle.Render(fmt.Sprintf("%d/%d proved", proved, len(recs))))
	return b.String()
}

// renderFeedback lists checker messages and open goals.
func renderFeedback(fb *checker.Feedback) string {
	if fb.Clean() {
		return provedStyle.Render("✔ no errors, no goals") + "\n"
	}
	var b strings.Builder
	for _, m := range fb.Messages {
		line := fmt.Sprintf("%s: %s: %s", m.Pos, m.Severity, m.Data)
		switch m.Severity {
		case checker.SeverityError:
			line = errorStyle.Render(line)
		case checker.SeverityWarning:
			line = warningStyle.Render(line)
		}
		fmt.Fprintf(&b, "%s\n", line)
	}
	for _, s := range fb.Sorries {
		fmt.Fprintf(&b, "%s %s\n%s\n", metaStyle.Render("goal at"), s.Pos, s.Goal)
	}
	return b.String()
}

// progressPrinter shows transitions as they happen.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) Observe(ev prover.Event) {
	line := fmt.Sprintf("[%s] step %d %s", shortID(ev.AttemptID), ev.Step, ev.State)
	if ev.Detail != "" && ev.State != prover.StateAwaitingOracle && ev.State != prover.StateAwaitingCheck {
		line += ": " + firstLine(ev.Detail)
	}
	fmt.Fprintln(p.w, transitionStyle.Render(line))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
