package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rehome.io/rehome-cli/internal/restore"
	"rehome.io/rehome-cli/internal/verify"
)

// ReportVersion is the current report format version.
const ReportVersion = "1"

// Report documents a single restore run: what archive went in, which
// identity it was rehomed under, what the pipeline did, and how the
// post-restore checks came out.
type Report struct {
	Version       string               `json:"version"`
	ID            string               `json:"id"`
	Timestamp     time.Time            `json:"timestamp"`
	ArchiveSource string               `json:"archive_source"`
	Database      DatabaseInfo         `json:"database"`
	Pipeline      *restore.Result      `json:"pipeline,omitempty"`
	Checks        []verify.CheckResult `json:"checks"`
	Summary       Summary              `json:"summary"`
	Signature     string               `json:"signature,omitempty"`
}

// DatabaseInfo identifies the restored database. The password is never
// written to a report.
type DatabaseInfo struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Summary provides an overview of the restore result.
type Summary struct {
	Success          bool   `json:"success"`
	TotalChecks      int    `json:"total_checks"`
	PassedChecks     int    `json:"passed_checks"`
	FailedChecks     int    `json:"failed_checks"`
	CriticalFailures int    `json:"critical_failures"`
	WarningFailures  int    `json:"warning_failures"`
	Duration         string `json:"duration"`
}

// ReportBuilder helps construct reports.
type ReportBuilder struct {
	report *Report
}

// NewReportBuilder creates a new report builder.
func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{
		report: &Report{
			Version:   ReportVersion,
			Timestamp: time.Now().UTC(),
		},
	}
}

func (b *ReportBuilder) WithID(id string) *ReportBuilder {
	b.report.ID = id
	return b
}

func (b *ReportBuilder) WithArchiveSource(source string) *ReportBuilder {
	b.report.ArchiveSource = source
	return b
}

func (b *ReportBuilder) WithDatabase(name, role string) *ReportBuilder {
	b.report.Database = DatabaseInfo{Name: name, Role: role}
	return b
}

func (b *ReportBuilder) WithPipeline(result *restore.Result) *ReportBuilder {
	b.report.Pipeline = result
	return b
}

func (b *ReportBuilder) WithChecks(checks []verify.CheckResult) *ReportBuilder {
	b.report.Checks = checks
	return b
}

func (b *ReportBuilder) WithDuration(d time.Duration) *ReportBuilder {
	b.report.Summary.Duration = d.Round(time.Millisecond).String()
	return b
}

// Build finalizes the report, computing the summary from the pipeline result
// and check outcomes.
func (b *ReportBuilder) Build() *Report {
	rpt := b.report

	passed := 0
	for _, c := range rpt.Checks {
		if c.Passed {
			passed++
		}
	}
	critical, warning, _ := verify.CountFailures(rpt.Checks)

	rpt.Summary.TotalChecks = len(rpt.Checks)
	rpt.Summary.PassedChecks = passed
	rpt.Summary.FailedChecks = len(rpt.Checks) - passed
	rpt.Summary.CriticalFailures = critical
	rpt.Summary.WarningFailures = warning
	rpt.Summary.Success = critical == 0 &&
		rpt.Pipeline != nil && rpt.Pipeline.FinalStage == restore.StageDone

	return rpt
}

// WriteJSON writes the report to dir and returns the path.
func WriteJSON(rpt *Report, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.json", rpt.Timestamp.Format("20060102-150405"), rpt.ID)
	path := filepath.Join(dir, filename)

	data, err := json.MarshalIndent(rpt, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

// ReportSummary is a lightweight listing entry for a stored report.
type ReportSummary struct {
	ID        string
	Timestamp time.Time
	Database  string
	Success   bool
	Path      string
}

// ListReports reads all report files in dir, newest first.
func ListReports(dir string) ([]*ReportSummary, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report directory: %w", err)
	}

	var summaries []*ReportSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		rpt, err := LoadReport(path)
		if err != nil {
			// A malformed file should not hide the rest of the reports.
			continue
		}
		summaries = append(summaries, &ReportSummary{
			ID:        rpt.ID,
			Timestamp: rpt.Timestamp,
			Database:  rpt.Database.Name,
			Success:   rpt.Summary.Success,
			Path:      path,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.After(summaries[j].Timestamp)
	})
	return summaries, nil
}

// LoadReport reads and parses a single report file.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var rpt Report
	if err := json.Unmarshal(data, &rpt); err != nil {
		return nil, fmt.Errorf("failed to parse report file %s: %w", path, err)
	}
	return &rpt, nil
}
