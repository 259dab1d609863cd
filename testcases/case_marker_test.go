package testcases

import (
	"context"
	"testing"

	"github.com/tbxark/remi/llm"
)

// TestMarkerProtocol runs the plain-text marker collaborator against a live model.
func TestMarkerProtocol(t *testing.T) {
	t.Parallel()
	chatModel := InitChatModel(t)
	if chatModel == nil {
		return
	}
	collab := llm.NewMarkerCollaborator(chatModel, llm.WithTemperature(0))
	reply, err := collab.Converse(context.Background(), NewTurn("Mexican food"), nil)
	if err != nil {
		t.Fatalf("converse: %v", err)
	}
	t.Logf("reply: %s", reply.Text)
	if v, ok := opValue(reply.Ops, "/cuisine"); !ok {
		t.Errorf("expected a cuisine marker, got ops %+v", reply.Ops)
	} else {
		t.Logf("cuisine: %v", v)
	}
}
