// Package llm wraps the chat model that talks to the user and proposes slot
// updates.
package llm

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/patch"
	"github.com/tbxark/remi/types"
)

type Signal string

const (
	SignalNone          Signal = "none"
	SignalSlotsComplete Signal = "slots_complete"
)

// Reply is one collaborator turn: text for the user, proposed fact patches
// and whether the model considers the search slots complete.
type Reply struct {
	Text          string
	Ops           []patch.Operation
	Signal        Signal
	InviteMessage string
}

type Collaborator interface {
	Converse(ctx context.Context, req *types.TurnRequest, history []*schema.Message) (*Reply, error)
}

// TurnPlan is the argument shape of the record_turn tool.
type TurnPlan struct {
	Message       string            `json:"message" jsonschema:"required,description=Reply to send to the user. Fun and friendly with plenty of emojis"`
	Operations    []patch.Operation `json:"operations,omitempty" jsonschema:"description=RFC6902 operations recording facts the user just gave. Only use the pointers listed in the facts table"`
	SlotsComplete bool              `json:"slots_complete" jsonschema:"description=True once cuisine and budget and location and radius are all known and the search should start"`
	InviteMessage string            `json:"invite_message,omitempty" jsonschema:"description=Personalized invitation for the friend naming the restaurant and the reservation date and time. Only when all invite details are known"`
}
