// Package agent issues the two-phase research request (research, then
// synthesis) to the language-model agent and yields incremental
// activity. The pipeline consumes it purely through the Adapter
// interface; tests substitute stubs.
package agent

import (
	"context"
	"errors"
)

// ItemKind classifies an item yielded by an adapter run.
type ItemKind string

const (
	// ItemResearchAction is one unit of incremental agent activity
	// (a web search, a page read).
	ItemResearchAction ItemKind = "research_action"
	// ItemReportText carries the final Markdown report. It is always
	// the last item of a successful run.
	ItemReportText ItemKind = "report_text"
)

// Item is one element of the lazy sequence produced by Run.
type Item struct {
	Kind    ItemKind
	Payload string
}

// ErrBudgetExceeded signals that the research phase consumed its action
// budget without producing usable findings.
var ErrBudgetExceeded = errors.New("research action budget exceeded")

// ErrNoReport signals that the agent finished without report content.
var ErrNoReport = errors.New("agent returned no report content")

// DefaultActionBudget caps distinct research actions per session.
const DefaultActionBudget = 10

// BudgetPolicy decides what happens when the action budget is exhausted
// with partial findings but no synthesized report.
type BudgetPolicy string

const (
	// PolicyFail terminates the run with ErrBudgetExceeded.
	PolicyFail BudgetPolicy = "fail"
	// PolicyWritePartial forces a best-effort writing phase from
	// whatever findings were collected.
	PolicyWritePartial BudgetPolicy = "write_partial"
)

// Adapter runs the two-phase research request. Items arrive on the
// first channel: zero or more research actions, then exactly one report
// text. Both channels are closed when the run ends; the error channel
// delivers at most one terminal error. A finite run is guaranteed by
// the action budget.
type Adapter interface {
	Run(ctx context.Context, topic, extraPrompt string) (<-chan Item, <-chan error)
}
