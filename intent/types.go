// Package intent classifies user messages the tracker can act on without a
// full LLM turn: restarts, button callbacks, RSVPs and restaurant choices.
package intent

import (
	"context"

	"github.com/tbxark/remi/types"
)

type Intent string

const (
	Restart     Intent = "restart"
	InviteYes   Intent = "invite_yes"
	InviteNo    Intent = "invite_no"
	RSVPAccept  Intent = "rsvp_accept"
	RSVPDecline Intent = "rsvp_decline"
	Choose      Intent = "choose"
	None        Intent = "none"
)

type Request struct {
	Input      string
	Stage      types.Stage
	Candidates []types.Candidate
}

// Result carries the intent plus its argument: Rank for Choose, FriendID for
// the RSVP intents.
type Result struct {
	Intent   Intent `json:"intent"`
	Rank     int    `json:"rank,omitempty"`
	FriendID string `json:"friend_id,omitempty"`
}

type Recognizer interface {
	Recognize(ctx context.Context, req *Request) (Result, error)
}
