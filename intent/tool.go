package intent

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/structured"
	"github.com/tbxark/remi/types"
)

const (
	classifyReplyToolName        = "classify_reply"
	classifyReplyToolDescription = "Classify the user's reply: choose a restaurant, accept or decline inviting a friend, or none."
)

// DefaultClassifySystemPrompt may contain a single "%s" placeholder for the tool name.
const DefaultClassifySystemPrompt = `You help a restaurant booking assistant understand short user replies.

The assistant is waiting for one of two things, shown as the current stage:
- awaiting_choice: the user should pick one of the listed restaurants. Return "choose" with the 1-based rank of the restaurant the user means, by number or by name.
- awaiting_invite_decision: the user was asked whether they want to invite a friend. Return "invite_yes" if they want to, "invite_no" if they will dine alone.

Return "none" when the reply does not answer the pending question.

Call the '%s' tool with the result.`

type classifyReply struct {
	Intent Intent `json:"intent" jsonschema:"required,enum=choose,enum=invite_yes,enum=invite_no,enum=none,description=What the reply means"`
	Rank   int    `json:"rank,omitempty" jsonschema:"description=1-based rank of the chosen restaurant when intent is choose"`
}

type ToolBasedRecognizer struct {
	systemPrompt string
	chain        *structured.Chain[*Request, classifyReply]
}

type RecognizerOption func(*ToolBasedRecognizer)

func WithClassifySystemPrompt(prompt string) RecognizerOption {
	return func(r *ToolBasedRecognizer) {
		r.systemPrompt = prompt
	}
}

func NewToolBasedRecognizer(chatModel model.ToolCallingChatModel, opts ...RecognizerOption) (*ToolBasedRecognizer, error) {
	r := &ToolBasedRecognizer{systemPrompt: DefaultClassifySystemPrompt}
	for _, opt := range opts {
		opt(r)
	}
	if strings.Contains(r.systemPrompt, "%s") {
		r.systemPrompt = fmt.Sprintf(r.systemPrompt, classifyReplyToolName)
	}
	chain, err := structured.NewChain[*Request, classifyReply](
		chatModel,
		r.buildPrompt,
		classifyReplyToolName,
		classifyReplyToolDescription,
	)
	if err != nil {
		return nil, err
	}
	r.chain = chain
	return r, nil
}

func (r *ToolBasedRecognizer) buildPrompt(_ context.Context, req *Request) ([]*schema.Message, error) {
	var sb strings.Builder
	sb.WriteString("# Current stage:\n")
	sb.WriteString(string(req.Stage))
	if len(req.Candidates) > 0 {
		sb.WriteString("\n\n# Restaurants offered:\n")
		for i, c := range req.Candidates {
			sb.WriteString(strconv.Itoa(i + 1))
			sb.WriteString(". ")
			sb.WriteString(c.Name)
			if c.DisplayAddress != "" {
				sb.WriteString(" in ")
				sb.WriteString(c.DisplayAddress)
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n# User reply:\n")
	sb.WriteString(req.Input)
	return []*schema.Message{
		schema.SystemMessage(r.systemPrompt),
		schema.UserMessage(sb.String()),
	}, nil
}

// Recognize only answers the questions of the awaiting_choice and
// awaiting_invite_decision stages; any other stage is None without a model call.
func (r *ToolBasedRecognizer) Recognize(ctx context.Context, req *Request) (Result, error) {
	if req.Stage != types.StageAwaitingChoice && req.Stage != types.StageAwaitingInviteDecision {
		return Result{Intent: None}, nil
	}
	out, err := r.chain.Invoke(ctx, req)
	if err != nil {
		return Result{Intent: None}, err
	}
	if out == nil || out.Intent == "" {
		return Result{Intent: None}, fmt.Errorf("empty intent returned by %s", classifyReplyToolName)
	}
	switch out.Intent {
	case Choose:
		if req.Stage != types.StageAwaitingChoice || out.Rank < 1 {
			return Result{Intent: None}, nil
		}
		return Result{Intent: Choose, Rank: out.Rank}, nil
	case InviteYes, InviteNo:
		if req.Stage != types.StageAwaitingInviteDecision {
			return Result{Intent: None}, nil
		}
		return Result{Intent: out.Intent}, nil
	default:
		return Result{Intent: None}, nil
	}
}

var _ Recognizer = (*ToolBasedRecognizer)(nil)
