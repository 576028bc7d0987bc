// Package export writes completed survey responses to an Excel workbook.
package export

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jonathan/onboarding-survey/internal/db"
	"github.com/jonathan/onboarding-survey/internal/types"
)

const (
	summarySheet   = "Summary"
	responsesSheet = "Responses"
	headerColor    = "4472C4"
)

var responseHeaders = []string{
	"Response ID", "User ID", "Full Name", "Education", "Industry", "Mission Focus",
	"Strengths", "Learning Preference", "Portfolio", "Experience Summary",
	"Connected Platforms", "Time Spent (min)", "Completed At",
}

// WriteFile writes the workbook to path, adding .xlsx when missing, and returns the final path.
func WriteFile(responses []db.SurveyResponse, path string, generated time.Time) (string, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f, err := build(responses, generated)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	return path, nil
}

// Write streams the workbook to w.
func Write(w io.Writer, responses []db.SurveyResponse, generated time.Time) error {
	f, err := build(responses, generated)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func build(responses []db.SurveyResponse, generated time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(responsesSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeSummary(f, responses, generated); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeResponses(f, responses); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create responses sheet: %w", err)
	}
	return f, nil
}

// sheetWriter records the first error so rows can be written without checking each call.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (s *sheetWriter) set(col, row int, v any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		s.err = err
		return
	}
	s.err = s.f.SetCellValue(s.sheet, cell, v)
}

func (s *sheetWriter) style(fromCol, toCol, row, style int) {
	if s.err != nil {
		return
	}
	from, _ := excelize.CoordinatesToCellName(fromCol, row)
	to, _ := excelize.CoordinatesToCellName(toCol, row)
	s.err = s.f.SetCellStyle(s.sheet, from, to, style)
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
}

func writeSummary(f *excelize.File, responses []db.SurveyResponse, generated time.Time) error {
	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 34); err != nil {
		return err
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 18); err != nil {
		return err
	}

	w := &sheetWriter{f: f, sheet: summarySheet}
	row := 1
	w.set(1, row, "Onboarding Survey Responses")
	w.style(1, 2, row, header)
	row += 2

	w.set(1, row, "Generated:")
	w.set(2, row, generated.UTC().Format("2006-01-02 15:04:05"))
	w.style(1, 1, row, label)
	row++
	w.set(1, row, "Total Responses:")
	w.set(2, row, len(responses))
	w.style(1, 1, row, label)
	row++
	if len(responses) > 0 {
		var total int64
		for _, r := range responses {
			total += r.Metadata.TotalTimeSpent
		}
		w.set(1, row, "Average Time Spent (min):")
		w.set(2, row, roundMinutes(total/int64(len(responses))))
		w.style(1, 1, row, label)
		row++
	}
	row++

	for _, section := range []struct {
		title string
		key   func(db.SurveyResponse) []string
	}{
		{"By Industry", func(r db.SurveyResponse) []string { return []string{r.Industry} }},
		{"By Learning Preference", func(r db.SurveyResponse) []string { return []string{r.LearningPreference} }},
		{"By Strength Area", func(r db.SurveyResponse) []string { return r.StrengthAreas }},
	} {
		w.set(1, row, section.title)
		w.style(1, 2, row, header)
		row++
		for _, c := range tally(responses, section.key) {
			w.set(1, row, c.name)
			w.set(2, row, c.count)
			row++
		}
		row++
	}
	return w.err
}

func writeResponses(f *excelize.File, responses []db.SurveyResponse) error {
	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	wrap, err := f.NewStyle(&excelize.Style{Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"}})
	if err != nil {
		return err
	}

	w := &sheetWriter{f: f, sheet: responsesSheet}
	for i, h := range responseHeaders {
		w.set(i+1, 1, h)
	}
	w.style(1, len(responseHeaders), 1, header)

	for i, r := range responses {
		row := i + 2
		values := []any{
			r.ID.String(),
			r.UserID.String(),
			r.FullName,
			r.EducationLevel,
			r.Industry,
			strings.Join(r.MissionFocus, ", "),
			strings.Join(r.StrengthAreas, ", "),
			r.LearningPreference,
			portfolio(r.Portfolio),
			r.ExperienceSummary,
			strings.Join(connected(r.PlatformConnections), ", "),
			roundMinutes(r.Metadata.TotalTimeSpent),
			r.CompletedAt.UTC().Format(time.RFC3339),
		}
		for col, v := range values {
			w.set(col+1, row, v)
		}
		w.style(1, len(responseHeaders), row, wrap)
	}
	if w.err != nil {
		return w.err
	}

	widths := map[string]float64{"A": 38, "B": 38, "C": 22, "D": 22, "E": 26, "F": 40, "G": 40, "H": 14, "I": 40, "J": 60, "K": 24, "L": 12, "M": 22}
	for col, width := range widths {
		if err := f.SetColWidth(responsesSheet, col, col, width); err != nil {
			return err
		}
	}
	if len(responses) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(responseHeaders), len(responses)+1)
		if err := f.AutoFilter(responsesSheet, "A1:"+last, nil); err != nil {
			return err
		}
	}
	return f.SetPanes(responsesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

type count struct {
	name  string
	count int
}

// tally counts values across responses, most frequent first, ties by name.
func tally(responses []db.SurveyResponse, key func(db.SurveyResponse) []string) []count {
	counts := map[string]int{}
	for _, r := range responses {
		for _, k := range key(r) {
			if k != "" {
				counts[k]++
			}
		}
	}
	out := make([]count, 0, len(counts))
	for name, n := range counts {
		out = append(out, count{name, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}

func portfolio(p types.PortfolioPayload) string {
	switch {
	case p.File != nil && p.File.URL != "":
		return p.File.URL
	case p.File != nil:
		return p.File.Name
	case p.URL != nil:
		return *p.URL
	}
	return ""
}

func connected(pc types.PlatformConnections) []string {
	var out []string
	for _, p := range types.Platforms {
		if rec := pc.Get(p); rec != nil && rec.Connected {
			out = append(out, fmt.Sprintf("%s (%s)", p, rec.Username))
		}
	}
	return out
}

func roundMinutes(ms int64) float64 {
	return float64(ms/600) / 100
}
