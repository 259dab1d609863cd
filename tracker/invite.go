package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbxark/remi/calendar"
	"github.com/tbxark/remi/chat"
	"github.com/tbxark/remi/extract"
	"github.com/tbxark/remi/intent"
	"github.com/tbxark/remi/types"
)

var errNoInvitation = errors.New("no invitation for handle")

// InvitationKey normalizes a chat handle so "@John_Doe" and "john_doe" find the
// same invitation.
func InvitationKey(handle string) string {
	h := strings.ToLower(strings.TrimSpace(handle))
	return "@" + strings.TrimPrefix(h, "@")
}

func channelFor(userID string) string {
	return "@" + strings.TrimPrefix(strings.TrimSpace(userID), "@")
}

func (t *Tracker) collectInviteDetails(ctx context.Context, sess *types.Session, input string) *types.Outcome {
	reply, err := t.converse(ctx, sess, t.turnRequest(sess, input))
	if err != nil {
		t.logger.Error("LLM turn failed", "user", sess.UserID, "stage", sess.Stage, "error", err)
		return types.Failed(types.OutcomeLLMUnavailable, apologyText, fmt.Errorf("%w: %w", types.ErrLLMUnavailable, err))
	}
	t.applyOps(sess, reply.Ops)
	if h := extract.Handle(input); h != "" {
		sess.Invite.FriendID = h
	}
	if !sess.Reservation.Complete() || sess.Invite.FriendID == "" {
		return types.OK(reply.Text)
	}
	return t.sendInvite(ctx, sess, reply.InviteMessage)
}

func (t *Tracker) sendInvite(ctx context.Context, sess *types.Session, message string) *types.Outcome {
	friend := sess.Invite.FriendID
	venue, _ := sess.ChosenCandidate()
	if strings.TrimSpace(message) == "" {
		message = inviteText(channelFor(sess.UserID), venue.Name, sess.Reservation.Date, sess.Reservation.Time)
	}
	if _, err := t.deliverer.Send(ctx, friend, message, chat.RSVPButtons(friend)); err != nil {
		t.logger.Error("Invitation delivery failed", "user", sess.UserID, "friend", friend, "error", err)
		return types.Failed(types.OutcomeDeliveryFailed, deliveryFailedText(friend), err)
	}
	sess.Invite.MessageSent = true
	sess.Stage = types.StageAwaitingRSVP

	inv := types.Invitation{
		InviterID: sess.UserID,
		FriendID:  friend,
		Venue:     venue.Name,
		Address:   venue.DisplayAddress,
		Date:      sess.Reservation.Date,
		Time:      sess.Reservation.Time,
		Status:    types.InvitationPending,
		SentAt:    t.now().UTC(),
	}
	if _, err := t.invitations.Update(ctx, InvitationKey(friend), func() types.Invitation { return types.Invitation{} }, func(v *types.Invitation) error {
		*v = inv
		return nil
	}); err != nil {
		// The message is out; the RSVP falls back to the inviter's own session.
		t.logger.Error("Failed to record invitation", "user", sess.UserID, "friend", friend, "error", err)
	}
	t.logger.Info("Invitation sent", "user", sess.UserID, "friend", friend, "venue", venue.Name)
	return types.OK(inviteSentText(friend))
}

// handleRSVP answers an RSVP button press without consulting the LLM. The
// invitation is looked up by the handle carried in the callback; when none is
// recorded the sender's own session supplies the booking details.
func (t *Tracker) handleRSVP(ctx context.Context, sess *types.Session, res intent.Result) (*types.Outcome, error) {
	friend := res.FriendID
	status := types.InvitationDeclined
	if res.Intent == intent.RSVPAccept {
		status = types.InvitationAccepted
	}

	var (
		inv       types.Invitation
		firstTime bool
	)
	_, err := t.invitations.Update(ctx, InvitationKey(friend), func() types.Invitation { return types.Invitation{} }, func(v *types.Invitation) error {
		if v.InviterID == "" {
			return errNoInvitation
		}
		firstTime = v.Status == types.InvitationPending || v.Status == ""
		v.Status = status
		inv = *v
		return nil
	})
	switch {
	case errors.Is(err, errNoInvitation):
		venue, _ := sess.ChosenCandidate()
		inv = types.Invitation{
			InviterID: sess.UserID,
			FriendID:  friend,
			Venue:     venue.Name,
			Address:   venue.DisplayAddress,
			Date:      sess.Reservation.Date,
			Time:      sess.Reservation.Time,
			Status:    status,
		}
		if sess.Stage == types.StageAwaitingRSVP {
			sess.Stage = types.StageDone
		}
	case err != nil:
		return nil, fmt.Errorf("update invitation for %s: %w", friend, err)
	}
	t.logger.Info("RSVP received", "user", sess.UserID, "friend", friend, "status", status, "inviter", inv.InviterID)

	out := t.rsvpOutcome(friend, inv)
	if firstTime && inv.InviterID != "" && inv.InviterID != sess.UserID {
		if _, err := t.deliverer.Send(ctx, channelFor(inv.InviterID), out.Text); err != nil {
			t.logger.Warn("Failed to notify inviter", "inviter", inv.InviterID, "error", err)
		}
	}
	return out, nil
}

func (t *Tracker) rsvpOutcome(friend string, inv types.Invitation) *types.Outcome {
	if inv.Status != types.InvitationAccepted {
		return types.OK(declinedText(friend))
	}
	if inv.Date == "" || inv.Time == "" || inv.Venue == "" {
		return types.OK(missingDetailsText(friend))
	}
	ev, err := calendar.Reservation(inv.Venue, inv.Address, inv.Date, inv.Time, t.timeZone)
	if err != nil {
		t.logger.Warn("Cannot build calendar event", "invitation", inv, "error", err)
		return types.OK(missingDetailsText(friend))
	}
	return types.OK(acceptedText(friend, calendar.Link(ev)))
}

// awaitRSVP reconciles the inviter's session with the invitation the friend
// may have answered meanwhile.
func (t *Tracker) awaitRSVP(ctx context.Context, sess *types.Session) (*types.Outcome, error) {
	friend := sess.Invite.FriendID
	inv, err := t.invitations.Load(ctx, InvitationKey(friend), func() types.Invitation { return types.Invitation{} })
	if err != nil {
		return nil, fmt.Errorf("load invitation for %s: %w", friend, err)
	}
	if inv.InviterID != sess.UserID || inv.Status == types.InvitationPending || inv.Status == "" {
		return types.OK(waitingText(friend)), nil
	}
	sess.Stage = types.StageDone
	return t.rsvpOutcome(friend, inv), nil
}
