package agent

import (
	"regexp"
	"strings"
)

var (
	h1Pattern      = regexp.MustCompile(`(?m)^# .+`)
	h2Pattern      = regexp.MustCompile(`(?m)^## .+`)
	reportHeading  = regexp.MustCompile(`(?mi)^(# .+(?:Market|Research|Brief|Report|Analysis|Overview|Executive).*)`)
	genericHeading = regexp.MustCompile(`(?m)^(# .+)`)
)

// isReportText checks whether a text looks like the actual Markdown
// report rather than intermediate reasoning: it needs a top-level
// heading, at least one subheading, and substance.
func isReportText(text string, minLength int) bool {
	return h1Pattern.MatchString(text) &&
		h2Pattern.MatchString(text) &&
		len(text) > minLength
}

// extractReport finds the final Markdown report in the agent's output.
// The agent interleaves short reasoning with the report, which may be
// split across the last few messages, so several strategies are tried
// from strictest to loosest.
func extractReport(resultText string, messageTexts []string) string {
	const minLength = 1000

	if resultText != "" && isReportText(resultText, minLength) {
		return strings.TrimSpace(resultText)
	}

	// A single trailing message may hold the whole report.
	for i := len(messageTexts) - 1; i >= 0; i-- {
		if isReportText(messageTexts[i], minLength) {
			return strings.TrimSpace(messageTexts[i])
		}
	}

	// The report may span consecutive messages at the end.
	if joined := joinedReport(messageTexts, minLength); joined != "" {
		return joined
	}

	// Extract from the first report-style heading in the concatenation.
	fullText := strings.Join(messageTexts, "\n\n")
	if resultText != "" {
		fullText += "\n\n" + resultText
	}
	loc := reportHeading.FindStringIndex(fullText)
	if loc == nil {
		loc = genericHeading.FindStringIndex(fullText)
	}
	if loc != nil {
		portion := strings.TrimSpace(fullText[loc[0]:])
		if len(portion) > 300 {
			return portion
		}
	}

	// Lower the bar: the agent may have been cut off mid-report.
	for i := len(messageTexts) - 1; i >= 0; i-- {
		if isReportText(messageTexts[i], 500) {
			return strings.TrimSpace(messageTexts[i])
		}
	}
	if joined := joinedReport(messageTexts, 500); joined != "" {
		return joined
	}

	// Last resort: a messy report beats no report.
	if strings.TrimSpace(fullText) != "" {
		return strings.TrimSpace(fullText)
	}
	return resultText
}

// joinedReport concatenates the last n messages for growing n and
// returns the first combination that reads as a report.
func joinedReport(messageTexts []string, minLength int) string {
	max := 8
	if len(messageTexts)+1 < max {
		max = len(messageTexts) + 1
	}
	for n := 2; n < max; n++ {
		combined := strings.Join(messageTexts[len(messageTexts)-n:], "\n\n")
		if isReportText(combined, minLength) {
			return strings.TrimSpace(combined)
		}
	}
	return ""
}
