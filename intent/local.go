package intent

import (
	"context"
	"strconv"
	"strings"

	"github.com/tbxark/remi/extract"
	"github.com/tbxark/remi/types"
)

const (
	AddFriendYes = "yes_clicked"
	AddFriendNo  = "no_clicked"

	RSVPYesPrefix = "yes_response_"
	RSVPNoPrefix  = "no_response_"
)

type LocalRecognizer struct {
	RestartPhrases []string
	YesWords       []string
	NoWords        []string
}

func NewLocalRecognizer() *LocalRecognizer {
	return &LocalRecognizer{
		RestartPhrases: []string{"restart", "start over", "new search"},
		YesWords:       []string{"yes", "y", "yeah", "yep", "sure", "ok", "okay", "of course", "absolutely", "yes please"},
		NoWords:        []string{"no", "n", "nope", "nah", "no thanks", "no thank you", "just me", "solo"},
	}
}

func (p *LocalRecognizer) Recognize(ctx context.Context, req *Request) (Result, error) {
	raw := strings.TrimSpace(req.Input)
	if id, ok := strings.CutPrefix(raw, RSVPYesPrefix); ok {
		return Result{Intent: RSVPAccept, FriendID: id}, nil
	}
	if id, ok := strings.CutPrefix(raw, RSVPNoPrefix); ok {
		return Result{Intent: RSVPDecline, FriendID: id}, nil
	}

	normalized := strings.ToLower(extract.ASCII(raw))
	for _, phrase := range p.RestartPhrases {
		if strings.Contains(normalized, phrase) {
			return Result{Intent: Restart}, nil
		}
	}

	switch normalized {
	case AddFriendYes:
		return Result{Intent: InviteYes}, nil
	case AddFriendNo:
		return Result{Intent: InviteNo}, nil
	}

	switch req.Stage {
	case types.StageAwaitingChoice:
		if n, ok := extract.TopChoice(normalized); ok {
			return Result{Intent: Choose, Rank: n}, nil
		}
		if n, err := strconv.Atoi(strings.Trim(normalized, " #.!")); err == nil {
			return Result{Intent: Choose, Rank: n}, nil
		}
	case types.StageAwaitingInviteDecision:
		word := strings.Trim(normalized, " .!,")
		for _, w := range p.YesWords {
			if word == w {
				return Result{Intent: InviteYes}, nil
			}
		}
		for _, w := range p.NoWords {
			if word == w {
				return Result{Intent: InviteNo}, nil
			}
		}
	}
	return Result{Intent: None}, nil
}

var _ Recognizer = (*LocalRecognizer)(nil)

// FailbackRecognizer asks each recognizer in turn and returns the first
// answer other than None.
type FailbackRecognizer struct {
	recognizers []Recognizer
}

func NewFailbackRecognizer(recognizers ...Recognizer) *FailbackRecognizer {
	return &FailbackRecognizer{recognizers: recognizers}
}

func (p *FailbackRecognizer) Recognize(ctx context.Context, req *Request) (Result, error) {
	var lastErr error
	for _, r := range p.recognizers {
		res, err := r.Recognize(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if res.Intent != None {
			return res, nil
		}
	}
	if lastErr != nil {
		return Result{Intent: None}, lastErr
	}
	return Result{Intent: None}, nil
}

var _ Recognizer = (*FailbackRecognizer)(nil)
