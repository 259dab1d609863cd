// Package structured forces a chat model to answer through a single tool call
// and decodes the call arguments into a Go value.
package structured

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

type PromptBuilder[TInput any] func(ctx context.Context, input TInput) ([]*schema.Message, error)

type Chain[TInput, TOutput any] struct {
	PromptBuilder PromptBuilder[TInput]
	ChatModel     model.ToolCallingChatModel
	ToolInfo      *schema.ToolInfo
	ModelOptions  []model.Option
}

type ChainOption[TInput, TOutput any] func(*Chain[TInput, TOutput])

// WithModelOptions appends per-call options such as temperature.
func WithModelOptions[TInput, TOutput any](opts ...model.Option) ChainOption[TInput, TOutput] {
	return func(c *Chain[TInput, TOutput]) {
		c.ModelOptions = append(c.ModelOptions, opts...)
	}
}

func NewChain[TInput, TOutput any](
	chatModel model.ToolCallingChatModel,
	promptBuilder PromptBuilder[TInput],
	toolName string,
	toolDesc string,
	opts ...ChainOption[TInput, TOutput],
) (*Chain[TInput, TOutput], error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	toolInfo, err := utils.GoStruct2ToolInfo[TOutput](toolName, toolDesc)
	if err != nil {
		return nil, fmt.Errorf("convert tool info failed: %w", err)
	}
	c := &Chain[TInput, TOutput]{
		PromptBuilder: promptBuilder,
		ChatModel:     chatModel,
		ToolInfo:      toolInfo,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (s *Chain[TInput, TOutput]) callOptions() []model.Option {
	opts := []model.Option{
		model.WithTools([]*schema.ToolInfo{s.ToolInfo}),
		model.WithToolChoice(schema.ToolChoiceForced, s.ToolInfo.Name),
	}
	return append(opts, s.ModelOptions...)
}

func (s *Chain[TInput, TOutput]) Invoke(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}
	response, err := s.ChatModel.Generate(ctx, messages, s.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	return s.decode(response)
}

// Stream concatenates the streamed chunks before decoding: tool call
// arguments arrive in fragments.
func (s *Chain[TInput, TOutput]) Stream(ctx context.Context, input TInput) (*TOutput, error) {
	messages, err := s.PromptBuilder(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}
	reader, err := s.ChatModel.Stream(ctx, messages, s.callOptions()...)
	if err != nil {
		return nil, fmt.Errorf("call model failed: %w", err)
	}
	response, err := schema.ConcatMessageStream(reader)
	if err != nil {
		return nil, fmt.Errorf("read model stream failed: %w", err)
	}
	return s.decode(response)
}

func (s *Chain[TInput, TOutput]) decode(msg *schema.Message) (*TOutput, error) {
	if msg == nil {
		return nil, fmt.Errorf("empty model response")
	}
	raw := ""
	for _, call := range msg.ToolCalls {
		if call.Function.Name == "" || call.Function.Name == s.ToolInfo.Name {
			raw = call.Function.Arguments
			break
		}
	}
	if raw == "" {
		// Some OpenAI-compatible servers ignore tool_choice and answer with
		// the JSON object as plain content.
		content := strings.TrimSpace(msg.Content)
		if !strings.HasPrefix(content, "{") {
			return nil, fmt.Errorf("no ToolCall found in model response: %s", msg.Content)
		}
		raw = content
	}
	var result TOutput
	if err := sonic.UnmarshalString(raw, &result); err != nil {
		return nil, fmt.Errorf("parse ToolCall arguments failed: %w", err)
	}
	return &result, nil
}

func (s *Chain[TInput, TOutput]) GetToolInfo() *schema.ToolInfo {
	return s.ToolInfo
}
