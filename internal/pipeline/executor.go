// Package pipeline drives a research session through its phases:
// researching, writing, rendering, then a terminal state. Collaborator
// errors are caught here and converted into a terminal status plus a
// final event; nothing is retried.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briefd/briefd/internal/agent"
	"github.com/briefd/briefd/internal/models"
	"github.com/briefd/briefd/internal/render"
	"github.com/briefd/briefd/internal/sessions"
)

// Error kinds recorded in a failed session's result.
const (
	ErrKindAgent          = "agent"
	ErrKindBudgetExceeded = "budget_exceeded"
	ErrKindRender         = "render"
)

// Executor runs one session per call to Run. It is safe to share one
// Executor across sessions; all per-session state lives on the Session.
type Executor struct {
	adapter   agent.Adapter
	renderer  render.Renderer
	outputDir string
	now       func() time.Time
}

// New creates an executor writing artifacts to outputDir.
func New(adapter agent.Adapter, renderer render.Renderer, outputDir string) *Executor {
	return &Executor{
		adapter:   adapter,
		renderer:  renderer,
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Run drives the session to a terminal state. Cancellation is observed
// cooperatively: at phase boundaries and at each unit of agent
// activity, never mid-call.
func (e *Executor) Run(ctx context.Context, sess *sessions.Session) {
	log := sess.Log()
	defer log.CloseLog()

	_ = sess.Transition(models.SessionStatusResearching)
	_, _ = log.Append(models.EventProgress, "starting research")

	items, errc := e.adapter.Run(ctx, sess.Topic, sess.ExtraPrompt)

	var report string
	for item := range items {
		if sess.CancelRequested() {
			e.finishCancelled(sess)
			return
		}
		switch item.Kind {
		case agent.ItemResearchAction:
			_, _ = log.Append(models.EventToolActivity, item.Payload)
		case agent.ItemReportText:
			report = item.Payload
		}
	}

	if err := <-errc; err != nil {
		if sess.CancelRequested() || errors.Is(err, context.Canceled) {
			e.finishCancelled(sess)
			return
		}
		kind := ErrKindAgent
		if errors.Is(err, agent.ErrBudgetExceeded) {
			kind = ErrKindBudgetExceeded
		}
		e.finishFailed(sess, kind, err.Error(), "")
		return
	}

	// Phase boundary: research complete.
	if sess.CancelRequested() {
		e.finishCancelled(sess)
		return
	}
	_ = sess.Transition(models.SessionStatusWriting)
	_, _ = log.Append(models.EventProgress, "writing report")

	if report == "" {
		e.finishFailed(sess, ErrKindAgent, agent.ErrNoReport.Error(), "")
		return
	}

	base := render.SlugFilename(sess.Topic, e.now())
	mdPath := filepath.Join(e.outputDir, base+".md")
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		e.finishFailed(sess, ErrKindRender, fmt.Sprintf("create output dir: %v", err), "")
		return
	}
	if err := os.WriteFile(mdPath, []byte(report), 0644); err != nil {
		e.finishFailed(sess, ErrKindRender, fmt.Sprintf("save markdown report: %v", err), "")
		return
	}

	// Phase boundary: report produced.
	if sess.CancelRequested() {
		e.finishCancelled(sess)
		return
	}
	_ = sess.Transition(models.SessionStatusRendering)
	_, _ = log.Append(models.EventProgress, "rendering pdf")

	pdfPath := filepath.Join(e.outputDir, base+".pdf")
	if err := e.renderer.Render(ctx, report, pdfPath); err != nil {
		// A cancel request kills the render through ctx; that is a
		// cancellation, not a render failure.
		if sess.CancelRequested() || errors.Is(err, context.Canceled) {
			e.finishCancelled(sess)
			return
		}
		// The Markdown artifact survives a render failure.
		e.finishFailed(sess, ErrKindRender,
			fmt.Sprintf("PDF generation failed: %v. Markdown saved.", err), mdPath)
		return
	}

	result := &models.Result{
		PDFPath:      pdfPath,
		MarkdownPath: mdPath,
	}
	_ = sess.Finish(models.SessionStatusCompleted, result, e.now())
	_, _ = log.Append(models.EventDone, fmt.Sprintf("Report saved: %s", filepath.Base(pdfPath)))
}

func (e *Executor) finishCancelled(sess *sessions.Session) {
	_ = sess.Finish(models.SessionStatusCancelled, nil, e.now())
	_, _ = sess.Log().Append(models.EventProgress, "cancelled")
}

func (e *Executor) finishFailed(sess *sessions.Session, kind, message, mdPath string) {
	result := &models.Result{
		ErrorKind:    kind,
		ErrorMessage: message,
		MarkdownPath: mdPath,
	}
	_ = sess.Finish(models.SessionStatusFailed, result, e.now())
	_, _ = sess.Log().Append(models.EventError, message)
}
