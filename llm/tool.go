package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/structured"
	"github.com/tbxark/remi/types"
)

const RecordTurnToolName = "record_turn"

type turnInput struct {
	req     *types.TurnRequest
	history []*schema.Message
}

// ToolBasedCollaborator asks the model to answer through the record_turn tool
// so reply text, patches and the completion signal arrive as one object.
type ToolBasedCollaborator struct {
	systemPrompt string
	factsSchema  string
	logger       *slog.Logger
	chain        *structured.Chain[turnInput, TurnPlan]
}

type collaboratorOptions struct {
	systemPrompt string
	temperature  *float32
	logger       *slog.Logger
}

type Option func(*collaboratorOptions)

func WithSystemPrompt(prompt string) Option {
	return func(o *collaboratorOptions) {
		o.systemPrompt = prompt
	}
}

func WithTemperature(t float32) Option {
	return func(o *collaboratorOptions) {
		o.temperature = &t
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *collaboratorOptions) {
		o.logger = logger
	}
}

func buildOptions(defaultPrompt string, opts []Option) collaboratorOptions {
	options := collaboratorOptions{systemPrompt: defaultPrompt}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.systemPrompt == "" {
		options.systemPrompt = defaultPrompt
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return options
}

func (o collaboratorOptions) modelOptions() []model.Option {
	if o.temperature == nil {
		return nil
	}
	return []model.Option{model.WithTemperature(*o.temperature)}
}

func NewToolBasedCollaborator(chatModel model.ToolCallingChatModel, opts ...Option) (*ToolBasedCollaborator, error) {
	options := buildOptions(DefaultToolSystemPrompt, opts)
	factsSchema, err := FactsSchema()
	if err != nil {
		return nil, err
	}
	c := &ToolBasedCollaborator{
		systemPrompt: options.systemPrompt,
		factsSchema:  factsSchema,
		logger:       options.logger,
	}
	chain, err := structured.NewChain[turnInput, TurnPlan](
		chatModel,
		c.buildPrompt,
		RecordTurnToolName,
		"Record the reply to the user and any facts the user provided this turn",
		structured.WithModelOptions[turnInput, TurnPlan](options.modelOptions()...),
	)
	if err != nil {
		return nil, fmt.Errorf("create record_turn chain: %w", err)
	}
	c.chain = chain
	return c, nil
}

func (c *ToolBasedCollaborator) buildPrompt(_ context.Context, in turnInput) ([]*schema.Message, error) {
	req := *in.req
	req.FactSchema = c.factsSchema
	message, err := types.FormatTurnRequest(&req)
	if err != nil {
		return nil, fmt.Errorf("convert to prompt message failed: %w", err)
	}
	messages := make([]*schema.Message, 0, len(in.history)+2)
	messages = append(messages, schema.SystemMessage(c.systemPrompt))
	messages = append(messages, in.history...)
	messages = append(messages, schema.UserMessage(message))
	return messages, nil
}

func (c *ToolBasedCollaborator) Converse(ctx context.Context, req *types.TurnRequest, history []*schema.Message) (*Reply, error) {
	plan, err := c.chain.Invoke(ctx, turnInput{req: req, history: history})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrLLMUnavailable, err)
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	ops, dropped := NormalizeOps(plan.Operations, now)
	if len(dropped) > 0 {
		c.logger.Debug("Dropped unusable patch operations", "ops", dropped)
	}
	reply := &Reply{
		Text:          plan.Message,
		Ops:           ops,
		Signal:        SignalNone,
		InviteMessage: plan.InviteMessage,
	}
	if plan.SlotsComplete {
		reply.Signal = SignalSlotsComplete
	}
	return reply, nil
}

var _ Collaborator = (*ToolBasedCollaborator)(nil)
