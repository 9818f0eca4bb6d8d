package agent

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

//go:embed prompts/*.txt
var promptsFS embed.FS

func loadPrompt(name string) string {
	data, err := promptsFS.ReadFile("prompts/" + name)
	if err != nil {
		panic(fmt.Sprintf("embedded prompt %s: %v", name, err))
	}
	return strings.TrimSpace(string(data))
}

// AnthropicAdapter implements Adapter on the Anthropic Messages API.
// Phase one runs the research conversation with the server-side web
// search tool; phase two synthesizes the Markdown report from the
// collected findings.
type AnthropicAdapter struct {
	api          *anthropic.Client
	model        anthropic.Model
	actionBudget int
	policy       BudgetPolicy
}

// NewAnthropicAdapter creates an adapter with the given API key, model,
// research action budget, and budget-exhaustion policy.
func NewAnthropicAdapter(apiKey, model string, actionBudget int, policy BudgetPolicy) *AnthropicAdapter {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	if actionBudget <= 0 {
		actionBudget = DefaultActionBudget
	}
	if policy == "" {
		policy = PolicyFail
	}
	return &AnthropicAdapter{
		api:          &client,
		model:        anthropic.Model(model),
		actionBudget: actionBudget,
		policy:       policy,
	}
}

// Run starts the two-phase request. Items and the terminal error are
// delivered on the returned channels, both closed when the run ends.
func (a *AnthropicAdapter) Run(ctx context.Context, topic, extraPrompt string) (<-chan Item, <-chan error) {
	items := make(chan Item)
	errc := make(chan error, 1)

	go func() {
		defer close(items)
		defer close(errc)
		if err := a.run(ctx, topic, extraPrompt, items); err != nil {
			errc <- err
		}
	}()

	return items, errc
}

func (a *AnthropicAdapter) run(ctx context.Context, topic, extraPrompt string, items chan<- Item) error {
	findings, actions, err := a.research(ctx, topic, extraPrompt, items)
	if err != nil {
		return err
	}

	if strings.TrimSpace(findings) == "" {
		if actions >= a.actionBudget && a.policy == PolicyFail {
			return fmt.Errorf("%w: %d actions without findings", ErrBudgetExceeded, actions)
		}
		if a.policy == PolicyFail {
			return ErrNoReport
		}
		findings = fmt.Sprintf("(no structured notes; %d research actions performed on %q)", actions, topic)
	}

	report, err := a.synthesize(ctx, topic, extraPrompt, findings)
	if err != nil {
		return err
	}

	select {
	case items <- Item{Kind: ItemReportText, Payload: report}:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// research runs phase one and returns the collected findings text and
// the number of research actions performed.
func (a *AnthropicAdapter) research(ctx context.Context, topic, extraPrompt string, items chan<- Item) (string, int, error) {
	userPrompt := buildTaskPrompt(topic, extraPrompt)

	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: loadPrompt("research.txt")},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
					MaxUses: anthropic.Int(int64(a.actionBudget)),
				},
			},
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("anthropic API call (research): %w", err)
	}

	var notes []string
	searches, fetches := 0, 0

	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			notes = append(notes, b.Text)
		case anthropic.ServerToolUseBlock:
			searches++
			var in struct {
				Query string `json:"query"`
			}
			_ = json.Unmarshal([]byte(b.JSON.Input.Raw()), &in)
			item := Item{
				Kind:    ItemResearchAction,
				Payload: fmt.Sprintf("[%d] Searching: %s", searches, in.Query),
			}
			select {
			case items <- item:
			case <-ctx.Done():
				return "", searches, ctx.Err()
			}
		case anthropic.WebSearchToolResultBlock:
			fetches++
			item := Item{
				Kind:    ItemResearchAction,
				Payload: fmt.Sprintf("[%d] Reading search results", fetches),
			}
			select {
			case items <- item:
			case <-ctx.Done():
				return "", searches, ctx.Err()
			}
		}
	}

	return strings.Join(notes, "\n\n"), searches + fetches, nil
}

// synthesize runs phase two: findings in, Markdown report out.
func (a *AnthropicAdapter) synthesize(ctx context.Context, topic, extraPrompt, findings string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Topic: ")
	sb.WriteString(topic)
	sb.WriteString("\n")
	if strings.TrimSpace(extraPrompt) != "" {
		sb.WriteString("\nAdditional instructions: ")
		sb.WriteString(strings.TrimSpace(extraPrompt))
		sb.WriteString("\n")
	}
	sb.WriteString("\nResearch notes:\n\n")
	sb.WriteString(findings)

	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: loadPrompt("synthesis.txt")},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call (synthesis): %w", err)
	}

	var texts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}

	report := extractReport("", texts)
	if strings.TrimSpace(report) == "" {
		return "", ErrNoReport
	}
	return report, nil
}

// buildTaskPrompt constructs the user prompt for the research phase.
func buildTaskPrompt(topic, extraPrompt string) string {
	var sb strings.Builder
	sb.WriteString("Research this topic for a market brief: ")
	sb.WriteString(topic)
	sb.WriteString("\n")
	if strings.TrimSpace(extraPrompt) != "" {
		sb.WriteString("\nAdditional instructions: ")
		sb.WriteString(strings.TrimSpace(extraPrompt))
		sb.WriteString("\n")
	}
	return sb.String()
}
