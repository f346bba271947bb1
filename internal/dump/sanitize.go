package dump

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Category classifies a single dump line.
type Category string

const (
	// CategoryData covers schema and data statements, which are kept.
	CategoryData Category = "data-or-schema"
	// CategoryPrivilege covers ownership, GRANT/REVOKE and role switches.
	CategoryPrivilege Category = "privilege"
	// CategoryEnvironmentSwitch covers database-level and session-identity
	// statements bound to the source environment.
	CategoryEnvironmentSwitch Category = "environment-switch"
	// CategoryExtension covers extension management statements.
	CategoryExtension Category = "extension-management"
)

// rule maps a line pattern to the category it elides. Rules are tried in
// order; the first match wins.
type rule struct {
	pattern  *regexp.Regexp
	category Category
}

// The dump is filtered line by line; no multi-line statement joining is
// performed. A multi-line statement whose triggering keyword sits on a
// continuation line is not classified, which is a known fidelity gap of
// line-oriented filtering (see Anomaly reporting below).
var rules = []rule{
	{regexp.MustCompile(`(?i)^\\connect\s`), CategoryEnvironmentSwitch},
	{regexp.MustCompile(`(?i)^\\c\s`), CategoryEnvironmentSwitch},
	{regexp.MustCompile(`(?i)^CREATE\s+DATABASE\s`), CategoryEnvironmentSwitch},
	{regexp.MustCompile(`(?i)^ALTER\s+DATABASE\s`), CategoryEnvironmentSwitch},
	{regexp.MustCompile(`(?i)^DROP\s+DATABASE\s`), CategoryEnvironmentSwitch},
	{regexp.MustCompile(`(?i)^COMMENT\s+ON\s+DATABASE\s`), CategoryEnvironmentSwitch},

	{regexp.MustCompile(`(?i)^ALTER\s+DEFAULT\s+PRIVILEGES\s`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^ALTER\s+.*\sOWNER\s+TO\s`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^GRANT\s`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^REVOKE\s`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^REASSIGN\s+OWNED\s`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^SET\s+ROLE\s`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^RESET\s+ROLE`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^SET\s+SESSION\s+AUTHORIZATION`), CategoryPrivilege},
	{regexp.MustCompile(`(?i)^RESET\s+SESSION\s+AUTHORIZATION`), CategoryPrivilege},

	{regexp.MustCompile(`(?i)^CREATE\s+EXTENSION\s`), CategoryExtension},
	{regexp.MustCompile(`(?i)^COMMENT\s+ON\s+EXTENSION\s`), CategoryExtension},
	{regexp.MustCompile(`(?i)^ALTER\s+EXTENSION\s`), CategoryExtension},
	{regexp.MustCompile(`(?i)^DROP\s+EXTENSION\s`), CategoryExtension},
}

// ownerToAnywhere flags lines that mention OWNER TO without matching the
// ALTER rule, typically the tail of a statement spanning multiple lines.
var ownerToAnywhere = regexp.MustCompile(`(?i)\sOWNER\s+TO\s`)

var copyStart = regexp.MustCompile(`(?i)^COPY\s.*\sFROM\s+stdin;`)

// Anomaly records a line that looked environment-bound but could not be
// classified by the rule table. Anomalous lines are always passed through,
// never dropped.
type Anomaly struct {
	Line   int
	Text   string
	Reason string
}

// Stats summarizes a sanitizer run.
type Stats struct {
	LinesRead   int
	LinesElided map[Category]int
	Anomalies   []Anomaly
}

// Classify returns the category of a single dump line, outside of any COPY
// data block.
func Classify(line string) Category {
	trimmed := strings.TrimSpace(line)
	for _, r := range rules {
		if r.pattern.MatchString(trimmed) {
			return r.category
		}
	}
	return CategoryData
}

// Sanitize filters a raw dump stream, writing retained lines to w in their
// original order and form. Lines classified as privilege, environment-switch
// or extension-management are elided. COPY data blocks are passed through
// untouched so row contents can never be mistaken for statements.
//
// The filter is idempotent: elided categories cannot appear in its output,
// so running it on its own output removes nothing further.
func Sanitize(r io.Reader, w io.Writer) (*Stats, error) {
	stats := &Stats{LinesElided: make(map[Category]int)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	inCopy := false
	for scanner.Scan() {
		line := scanner.Text()
		stats.LinesRead++

		if inCopy {
			if line == `\.` {
				inCopy = false
			}
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return stats, fmt.Errorf("failed to write sanitized dump: %w", err)
			}
			continue
		}

		category := Classify(line)
		if category != CategoryData {
			stats.LinesElided[category]++
			continue
		}

		trimmed := strings.TrimSpace(line)
		if copyStart.MatchString(trimmed) {
			inCopy = true
		}
		if ownerToAnywhere.MatchString(line) {
			stats.Anomalies = append(stats.Anomalies, Anomaly{
				Line:   stats.LinesRead,
				Text:   truncateLine(line),
				Reason: "OWNER TO outside a single-line ALTER statement",
			})
		}

		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return stats, fmt.Errorf("failed to write sanitized dump: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read dump: %w", err)
	}

	return stats, nil
}

// Elided returns the total number of elided lines across all categories.
func (s *Stats) Elided() int {
	total := 0
	for _, n := range s.LinesElided {
		total += n
	}
	return total
}

func truncateLine(line string) string {
	const max = 120
	if len(line) <= max {
		return line
	}
	return line[:max] + "..."
}
