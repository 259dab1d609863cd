package llm

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/store"
)

const DefaultHistoryDepth = 10

type Trimmer interface {
	Trim(history []*schema.Message) []*schema.Message
}

// KeepSystemLastNTrimmer keeps all system messages and the last N non-system messages.
// When N <= 0, it keeps only system messages.
type KeepSystemLastNTrimmer struct {
	N int
}

func (t KeepSystemLastNTrimmer) Trim(history []*schema.Message) []*schema.Message {
	kept := 0
	keep := make([]bool, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m == nil {
			continue
		}
		if m.Role == schema.System {
			keep[i] = true
			continue
		}
		if kept < t.N {
			keep[i] = true
			kept++
		}
	}
	out := make([]*schema.Message, 0, len(history))
	for i, m := range history {
		if keep[i] {
			out = append(out, m)
		}
	}
	return out
}

// HistoryStore keeps one trimmed message log per conversation id.
type HistoryStore struct {
	store   store.Store[[]*schema.Message]
	trimmer Trimmer
}

func NewHistoryStore(s store.Store[[]*schema.Message], trimmer Trimmer) *HistoryStore {
	if trimmer == nil {
		trimmer = KeepSystemLastNTrimmer{N: DefaultHistoryDepth}
	}
	return &HistoryStore{store: s, trimmer: trimmer}
}

func NewMemoryHistoryStore(depth int) *HistoryStore {
	return NewHistoryStore(store.NewMemoryStore[[]*schema.Message](), KeepSystemLastNTrimmer{N: depth})
}

func (s *HistoryStore) Load(ctx context.Context, conversationID string) ([]*schema.Message, error) {
	e, ok, err := s.store.Get(ctx, conversationID)
	if err != nil || !ok {
		return nil, err
	}
	return e.Value, nil
}

// Append adds the exchange, dropping a message identical to the one before it,
// trims and saves.
func (s *HistoryStore) Append(ctx context.Context, conversationID string, msgs ...*schema.Message) ([]*schema.Message, error) {
	hist, err := s.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if n := len(hist); n > 0 && hist[n-1] != nil && hist[n-1].Role == msg.Role && hist[n-1].Content == msg.Content {
			continue
		}
		hist = append(hist, msg)
	}
	hist = s.trimmer.Trim(hist)
	if err := s.store.Put(ctx, conversationID, hist); err != nil {
		return nil, err
	}
	return hist, nil
}

func (s *HistoryStore) Clear(ctx context.Context, conversationID string) error {
	return s.store.Delete(ctx, conversationID)
}
