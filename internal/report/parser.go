// Package report post-processes free-form LLM output into typed
// sections for rendering and export.
package report

import (
	"regexp"
	"strings"

	"github.com/guidopia/apiserver/types"
)

// Heading shapes the models actually produce: markdown headings,
// bold-line headings, and numbered headings.
var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^#{1,4}\s+(.+?)\s*$`),
	regexp.MustCompile(`^\*\*(.+?)\*\*:?\s*$`),
	regexp.MustCompile(`^(?:\d{1,2}[.)])\s+([^.].{2,80}?):?\s*$`),
}

const preambleTitle = "Overview"

// Parse splits raw LLM text into titled sections. Text before the
// first recognized heading becomes an "Overview" section. Input with
// no recognizable headings yields a single Overview section so callers
// always get renderable output.
func Parse(raw string) []types.ReportSection {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var sections []types.ReportSection
	current := types.ReportSection{Title: preambleTitle}
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			current.Body = text
			sections = append(sections, current)
		}
		body = body[:0]
	}

	for _, line := range lines {
		if title, ok := matchHeading(strings.TrimSpace(line)); ok {
			flush()
			current = types.ReportSection{Title: title}
			continue
		}
		body = append(body, line)
	}
	flush()

	if len(sections) == 0 {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return nil
		}
		return []types.ReportSection{{Title: preambleTitle, Body: trimmed}}
	}
	return sections
}

func matchHeading(line string) (string, bool) {
	if line == "" {
		return "", false
	}
	for i, pattern := range headingPatterns {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		title := strings.TrimSpace(strings.Trim(m[1], "*#:"))
		if title == "" {
			continue
		}
		// Numbered lines ending in a period are list items, not headings.
		if i == 2 && strings.HasSuffix(title, ".") {
			continue
		}
		return title, true
	}
	return "", false
}
