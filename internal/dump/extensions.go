package dump

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
)

var extensionDecl = regexp.MustCompile(`(?i)^\s*CREATE\s+EXTENSION\s+(?:IF\s+NOT\s+EXISTS\s+)?"?([A-Za-z0-9_]+)"?`)

// ScanExtensions reads a raw dump stream and returns the names of all
// extensions it declares, deduplicated, in order of first appearance. The
// scan runs against the unsanitized dump: the sanitizer later strips these
// statements, so they must be collected beforehand.
func ScanExtensions(r io.Reader) ([]string, error) {
	var names []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	for scanner.Scan() {
		match := extensionDecl.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan dump for extensions: %w", err)
	}

	return names, nil
}
