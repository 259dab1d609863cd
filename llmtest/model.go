// Package llmtest provides a scripted chat model for tests that must not reach
// a real LLM.
package llmtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

var ErrExhausted = errors.New("llmtest: no scripted responses left")

// Call records one request the model received.
type Call struct {
	Messages   []*schema.Message
	Tools      []string
	ToolChoice *schema.ToolChoice
}

// Model replays responses in order. A nil *schema.Message entry paired with a
// non-nil error makes that call fail.
type Model struct {
	mu        sync.Mutex
	responses []step
	calls     []Call
	tools     []*schema.ToolInfo
}

type step struct {
	msg *schema.Message
	err error
}

func New() *Model {
	return &Model{}
}

// Reply scripts a plain assistant message.
func (m *Model) Reply(content string) *Model {
	return m.push(step{msg: schema.AssistantMessage(content, nil)})
}

// ToolCall scripts an assistant message calling tool with args encoded as JSON.
func (m *Model) ToolCall(tool string, args any) *Model {
	raw, err := sonic.MarshalString(args)
	if err != nil {
		panic(fmt.Sprintf("llmtest: encode %s args: %v", tool, err))
	}
	return m.push(step{msg: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       fmt.Sprintf("call_%d", len(m.responses)+1),
		Function: schema.FunctionCall{Name: tool, Arguments: raw},
	}})})
}

// Fail scripts an error.
func (m *Model) Fail(err error) *Model {
	return m.push(step{err: err})
}

func (m *Model) push(s step) *Model {
	m.mu.Lock()
	m.responses = append(m.responses, s)
	m.mu.Unlock()
	return m
}

func (m *Model) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Model) next(input []*schema.Message, opts []model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Tools: m.tools}, opts...)
	call := Call{Messages: input, ToolChoice: options.ToolChoice}
	for _, t := range options.Tools {
		call.Tools = append(call.Tools, t.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if len(m.responses) == 0 {
		return nil, ErrExhausted
	}
	s := m.responses[0]
	m.responses = m.responses[1:]
	return s.msg, s.err
}

func (m *Model) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.next(input, opts)
}

func (m *Model) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools shares the script with the returned model.
func (m *Model) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

var _ model.ToolCallingChatModel = (*Model)(nil)
