package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/extract"
	"github.com/tbxark/remi/patch"
	"github.com/tbxark/remi/types"
)

// MarkerCollaborator talks to the model in plain prose and recovers facts from
// the "<Slot> noted:" lines the legacy prompt asks for.
type MarkerCollaborator struct {
	systemPrompt string
	options      []model.Option
	logger       *slog.Logger
	chatModel    model.BaseChatModel
}

func NewMarkerCollaborator(chatModel model.BaseChatModel, opts ...Option) *MarkerCollaborator {
	options := buildOptions(LegacySystemPrompt, opts)
	return &MarkerCollaborator{
		systemPrompt: options.systemPrompt,
		options:      options.modelOptions(),
		logger:       options.logger,
		chatModel:    chatModel,
	}
}

func (c *MarkerCollaborator) buildPrompt(req *types.TurnRequest, history []*schema.Message) []*schema.Message {
	system := c.systemPrompt
	if req.Venue != "" {
		system += fmt.Sprintf("\n\nThe user's chosen restaurant is: %s", req.Venue)
	}
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(system))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(req.Input))
	return messages
}

func (c *MarkerCollaborator) Converse(ctx context.Context, req *types.TurnRequest, history []*schema.Message) (*Reply, error) {
	response, err := c.chatModel.Generate(ctx, c.buildPrompt(req, history), c.options...)
	if err != nil {
		return nil, fmt.Errorf("%w: LLM call failed: %w", types.ErrLLMUnavailable, err)
	}
	text := strings.TrimSpace(response.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", types.ErrLLMUnavailable)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	found := extract.Markers(text, now)
	// The friend only ever comes from the user's own words.
	friend := ""
	if req.Stage == types.StageCollectingInviteDetails {
		friend = extract.Handle(req.Input)
	}
	if friend != "" {
		found.FriendID = friend
	}
	ops, err := patch.Diff(req.Facts, found)
	if err != nil {
		return nil, fmt.Errorf("diff extracted facts: %w", err)
	}
	ops, dropped := NormalizeOps(ops, now)
	if len(dropped) > 0 {
		c.logger.Debug("Dropped unusable marker values", "ops", dropped)
	}

	reply := &Reply{Text: text, Ops: ops, Signal: SignalNone}
	if friend != "" {
		reply.InviteMessage = text
	}
	if extract.HasSentinel(text) {
		reply.Signal = SignalSlotsComplete
	}
	return reply, nil
}

var _ Collaborator = (*MarkerCollaborator)(nil)
