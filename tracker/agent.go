package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/types"
)

var _ adk.Agent = (*Agent)(nil)

// Agent exposes a Service as an eino agent speaking for a single user, so
// REMI can run under an adk.Runner outside the webhook.
type Agent struct {
	name        string
	description string
	userID      string
	service     *Service
}

func NewAgent(name, description, userID string, service *Service) *Agent {
	return &Agent{
		name:        name,
		description: description,
		userID:      userID,
		service:     service,
	}
}

func (a *Agent) Name(ctx context.Context) string {
	return a.name
}

func (a *Agent) Description(ctx context.Context) string {
	return a.description
}

func (a *Agent) Run(ctx context.Context, input *adk.AgentInput, options ...adk.AgentRunOption) *adk.AsyncIterator[*adk.AgentEvent] {
	iter, gen := adk.NewAsyncIteratorPair[*adk.AgentEvent]()
	go func() {
		defer func() {
			if e := recover(); e != nil {
				gen.Send(&adk.AgentEvent{Err: fmt.Errorf("recover from panic: %v", e)})
			}
			gen.Close()
		}()
		if input == nil || len(input.Messages) == 0 {
			gen.Send(&adk.AgentEvent{Err: fmt.Errorf("no messages in input")})
			return
		}
		out, err := a.service.Handle(ctx, a.userID, input.Messages[len(input.Messages)-1].Content)
		if err != nil {
			gen.Send(&adk.AgentEvent{Err: err})
			return
		}
		gen.Send(&adk.AgentEvent{
			Output: &adk.AgentOutput{
				MessageOutput: &adk.MessageVariant{
					Message: schema.AssistantMessage(renderOutcome(out.Text, out.Attachments), nil),
					Role:    schema.Assistant,
				},
			},
		})
	}()
	return iter
}

// renderOutcome flattens button attachments into text for plain chat
// surfaces: each button becomes a line naming what to type.
func renderOutcome(text string, attachments []types.Attachment) string {
	var sb strings.Builder
	sb.WriteString(text)
	for _, a := range attachments {
		if a.Title != "" || a.Text != "" {
			sb.WriteString("\n\n")
			sb.WriteString(strings.TrimSpace(a.Title + " " + a.Text))
		}
		for _, act := range a.Actions {
			fmt.Fprintf(&sb, "\n  [%s] -> type %q", act.Text, act.Msg)
		}
	}
	return sb.String()
}
