package report

import "testing"

func TestParseMarkdownHeadings(t *testing.T) {
	raw := `Here is your personalized career report.

## Career Matches
Software engineering and data science fit your profile.

## Recommended Streams
Science with computer science electives.
`
	sections := Parse(raw)
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(sections))
	}
	if sections[0].Title != "Overview" {
		t.Fatalf("preamble title = %q, want Overview", sections[0].Title)
	}
	if sections[1].Title != "Career Matches" {
		t.Fatalf("section title = %q, want Career Matches", sections[1].Title)
	}
	if sections[2].Body != "Science with computer science electives." {
		t.Fatalf("unexpected body: %q", sections[2].Body)
	}
}

func TestParseNumberedHeadings(t *testing.T) {
	raw := `1. Aptitude Summary
Strong logical reasoning.

2. Suggested Careers
Engineering, architecture.
`
	sections := Parse(raw)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2", len(sections))
	}
	if sections[0].Title != "Aptitude Summary" {
		t.Fatalf("title = %q", sections[0].Title)
	}
	if sections[1].Title != "Suggested Careers" {
		t.Fatalf("title = %q", sections[1].Title)
	}
}

func TestParseBoldHeadings(t *testing.T) {
	raw := "**Strengths**\nCuriosity and persistence.\n"
	sections := Parse(raw)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Title != "Strengths" {
		t.Fatalf("title = %q", sections[0].Title)
	}
}

func TestParseNoHeadings(t *testing.T) {
	sections := Parse("just a flat paragraph of advice")
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(sections))
	}
	if sections[0].Title != "Overview" || sections[0].Body != "just a flat paragraph of advice" {
		t.Fatalf("unexpected fallback section: %+v", sections[0])
	}
}

func TestParseEmpty(t *testing.T) {
	if sections := Parse("  \n \n"); sections != nil {
		t.Fatalf("expected nil for blank input, got %+v", sections)
	}
}

func TestParseNumberedListNotHeading(t *testing.T) {
	// A numbered sentence ending in a period is list content, not a heading.
	raw := "## Next Steps\n1. Practice aptitude tests weekly and review mistakes carefully to build speed.\n2. Talk to a counselor.\n"
	sections := Parse(raw)
	if len(sections) != 1 {
		t.Fatalf("got %d sections, want 1: %+v", len(sections), sections)
	}
}
