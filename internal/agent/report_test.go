package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// sampleReport builds a Markdown report of at least n bytes.
func sampleReport(n int) string {
	var b strings.Builder
	b.WriteString("# Quantum Computing Market Research\n\n")
	b.WriteString("## Executive Summary\n\n")
	for b.Len() < n {
		b.WriteString("The market continues to grow across hardware and software segments. ")
	}
	return b.String()
}

func TestIsReportText(t *testing.T) {
	report := sampleReport(1200)

	assert.True(t, isReportText(report, 1000))
	assert.False(t, isReportText(report, len(report)+1), "too short for the bar")
	assert.False(t, isReportText("## Only A Subheading\n\n"+strings.Repeat("x", 2000), 1000),
		"missing top-level heading")
	assert.False(t, isReportText("# Only A Heading\n\n"+strings.Repeat("x", 2000), 1000),
		"missing subheading")
}

func TestExtractReport_FromResultText(t *testing.T) {
	report := sampleReport(1200)

	got := extractReport(report, []string{"I'll research this now.", "Searching..."})
	assert.Equal(t, strings.TrimSpace(report), got)
}

func TestExtractReport_FromTrailingMessage(t *testing.T) {
	report := sampleReport(1200)
	messages := []string{
		"Let me look into the market.",
		"Found several sources.",
		report,
	}

	got := extractReport("Done.", messages)
	assert.Equal(t, strings.TrimSpace(report), got)
}

func TestExtractReport_SpanningMessages(t *testing.T) {
	// The report is split across the last two messages; neither half
	// qualifies alone.
	head := "# Quantum Computing Market Research\n\n" + strings.Repeat("Intro text. ", 50)
	tail := "## Key Findings\n\n" + strings.Repeat("Detail. ", 100)
	messages := []string{"Let me research.", head, tail}

	got := extractReport("", messages)
	assert.Contains(t, got, "# Quantum Computing Market Research")
	assert.Contains(t, got, "## Key Findings")
}

func TestExtractReport_FromHeadingInConcatenation(t *testing.T) {
	// No single message or suffix passes the structural check, but a
	// report-style heading marks where the content starts.
	body := "# Market Analysis of Widgets\n\n" + strings.Repeat("Numbers and findings. ", 30)
	messages := []string{"Thinking about the approach.", body}

	got := extractReport("", messages)
	assert.True(t, strings.HasPrefix(got, "# Market Analysis of Widgets"))
	assert.NotContains(t, got, "Thinking about the approach.")
}

func TestExtractReport_LastResortReturnsEverything(t *testing.T) {
	messages := []string{"short note", "another note"}

	got := extractReport("", messages)
	assert.Contains(t, got, "short note")
	assert.Contains(t, got, "another note")
}

func TestExtractReport_Empty(t *testing.T) {
	assert.Equal(t, "", extractReport("", nil))
}
