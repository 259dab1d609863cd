package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tbxark/remi/chat"
	"github.com/tbxark/remi/intent"
	"github.com/tbxark/remi/search"
	"github.com/tbxark/remi/types"
)

// runSearch starts a new search round. Results and choice of the previous
// round are dropped before the call so a failed round leaves nothing stale.
func (t *Tracker) runSearch(ctx context.Context, sess *types.Session, lead string) *types.Outcome {
	sess.Stage = types.StageSearching
	sess.SearchResults = []types.Candidate{}
	sess.Chosen = nil
	sess.SearchID = uuid.NewString()
	slots := sess.Slots

	t.logger.Info("Searching restaurants", "user", sess.UserID, "search_id", sess.SearchID, "slots", slots)
	candidates, err := t.searcher.Search(ctx, slots)
	if err != nil {
		t.logger.Error("Search failed", "user", sess.UserID, "search_id", sess.SearchID, "error", err)
		var se *search.StatusError
		if errors.As(err, &se) {
			return types.Failed(types.OutcomeSearchUnavailable, searchFailedText(se.Code, se.Body), err)
		}
		return types.Failed(types.OutcomeSearchUnavailable,
			fmt.Sprintf("⚠️ Yelp API request failed. Error: %v", err),
			fmt.Errorf("%w: %w", types.ErrSearchUnavailable, err))
	}

	switch len(candidates) {
	case 0:
		return types.OK(joinText(lead, noResultsText))
	case 1:
		sess.SearchResults = candidates
		sess.Chosen = &types.Choice{Rank: 1}
		sess.Stage = types.StageAwaitingInviteDecision
		text := joinText(lead, search.FormatResults(candidates)+"\n"+bookingText(candidates[0].Name)+"\n"+invitePromptText)
		return types.OK(text, chat.AddFriendsButtons())
	default:
		sess.SearchResults = candidates
		sess.Stage = types.StageAwaitingChoice
		return types.OK(choiceListText(lead, search.FormatResults(candidates), len(candidates)))
	}
}

func (t *Tracker) choose(sess *types.Session, res intent.Result) *types.Outcome {
	n := len(sess.SearchResults)
	if res.Intent != intent.Choose || res.Rank < 1 || res.Rank > n {
		return types.Failed(types.OutcomeSlotUnrecognized, chooseRangeText(n), types.ErrSlotUnrecognized)
	}
	sess.Chosen = &types.Choice{Rank: res.Rank}
	sess.Stage = types.StageAwaitingInviteDecision
	venue := sess.SearchResults[res.Rank-1].Name
	t.logger.Info("Restaurant chosen", "user", sess.UserID, "rank", res.Rank, "venue", venue)
	return types.OK(bookingText(venue)+"\n"+invitePromptText, chat.AddFriendsButtons())
}

func (t *Tracker) decideInvite(sess *types.Session, res intent.Result) *types.Outcome {
	switch res.Intent {
	case intent.InviteYes:
		sess.Stage = types.StageCollectingInviteDetails
		return types.OK(inviteDetailsText)
	case intent.InviteNo:
		sess.Stage = types.StageDone
		c, _ := sess.ChosenCandidate()
		return types.OK(soloText(c.Name))
	default:
		out := types.Failed(types.OutcomeSlotUnrecognized, inviteUnclearText, types.ErrSlotUnrecognized)
		out.Attachments = []types.Attachment{chat.AddFriendsButtons()}
		return out
	}
}

func joinText(lead, body string) string {
	if lead == "" {
		return body
	}
	return lead + "\n\n" + body
}
