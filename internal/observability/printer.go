package observability

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/onboarding-survey/internal/types"
)

const (
	boxWidth       = 60
	maxItemsToShow = 5
)

// Printer renders survey state as boxed text for verbose CLI output.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func writeList(sb *strings.Builder, label string, items []string, limit int) {
	if len(items) == 0 {
		fmt.Fprintf(sb, "%s (none)\n", label)
		return
	}
	fmt.Fprintf(sb, "%s\n", label)
	for _, item := range items[:min(len(items), limit)] {
		fmt.Fprintf(sb, "  • %s\n", item)
	}
	if len(items) > limit {
		fmt.Fprintf(sb, "  ... and %d more\n", len(items)-limit)
	}
}

// PrintDraft outputs a summary of a survey draft or completed response.
func (p *Printer) PrintDraft(d *types.FormData) {
	if d == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Name:       %s\n", d.FullName.Value)
	fmt.Fprintf(&sb, "Education:  %s\n", d.EducationLevel.Value)
	fmt.Fprintf(&sb, "Industry:   %s\n", d.Industry.Value)
	fmt.Fprintf(&sb, "Learning:   %s\n", d.LearningPreference.Value)
	sb.WriteString("\n")

	writeList(&sb, "Mission focus:", d.MissionFocus.Value, maxItemsToShow)
	writeList(&sb, "Strengths:", d.StrengthAreas.Value, maxItemsToShow)
	sb.WriteString("\n")

	switch {
	case d.Portfolio.UploadedURL != "":
		fmt.Fprintf(&sb, "Portfolio:  %s\n", d.Portfolio.UploadedURL)
	case d.Portfolio.URL != "":
		fmt.Fprintf(&sb, "Portfolio:  %s\n", d.Portfolio.URL)
	default:
		sb.WriteString("Portfolio:  (none)\n")
	}

	var connected []string
	for _, pl := range types.Platforms {
		if c := d.PlatformConnections.Get(pl); c.Connected {
			connected = append(connected, fmt.Sprintf("%s (%s)", pl, c.Username))
		}
	}
	writeList(&sb, "Platforms:", connected, len(types.Platforms))

	if n := len([]rune(d.ExperienceSummary.Value)); n > 0 {
		fmt.Fprintf(&sb, "Summary:    %d characters\n", n)
	}
	sb.WriteString("\n")

	status := fmt.Sprintf("step %d of %d", d.CurrentStep, d.TotalSteps)
	if d.CompletedAt != nil {
		status = "completed " + d.CompletedAt.Format(time.RFC3339)
	}
	fmt.Fprintf(&sb, "Status:     %s\n", status)
	fmt.Fprintf(&sb, "Time spent: %s\n", d.TotalTimeSpent().Round(time.Second))
	fmt.Fprintf(&sb, "Events:     %d", len(d.Interactions))

	p.printBox("SURVEY DRAFT", sb.String())
}

// PrintStepErrors outputs per-step validation failures. Steps without errors are omitted.
func (p *Printer) PrintStepErrors(errs map[int]map[types.FieldName]string) {
	var sb strings.Builder
	steps := make([]int, 0, len(errs))
	for step, fields := range errs {
		if len(fields) > 0 {
			steps = append(steps, step)
		}
	}
	slices.Sort(steps)

	if len(steps) == 0 {
		p.printBox("VALIDATION", "✓ All steps pass validation")
		return
	}

	for i, step := range steps {
		fmt.Fprintf(&sb, "Step %d:\n", step)
		fields := make([]string, 0, len(errs[step]))
		for f := range errs[step] {
			fields = append(fields, string(f))
		}
		slices.Sort(fields)
		for _, f := range fields {
			fmt.Fprintf(&sb, "  ✗ %s: %s\n", f, errs[step][types.FieldName(f)])
		}
		if i < len(steps)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("VALIDATION ERRORS", strings.TrimSuffix(sb.String(), "\n"))
}
