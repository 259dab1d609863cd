// Package tracker drives one user's conversation: it owns the slot-filling
// stage machine and calls the LLM, search and chat collaborators.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/chat"
	"github.com/tbxark/remi/intent"
	"github.com/tbxark/remi/llm"
	"github.com/tbxark/remi/patch"
	"github.com/tbxark/remi/search"
	"github.com/tbxark/remi/store"
	"github.com/tbxark/remi/types"
)

type Tracker struct {
	collaborator llm.Collaborator
	recognizer   intent.Recognizer
	searcher     search.Searcher
	deliverer    chat.Deliverer
	history      *llm.HistoryStore
	invitations  *store.Guard[types.Invitation]
	timeZone     string
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*Tracker)

// WithRecognizer replaces the keyword recognizer, typically with a failback
// chain that ends in an LLM recognizer.
func WithRecognizer(r intent.Recognizer) Option {
	return func(t *Tracker) { t.recognizer = r }
}

func WithHistory(h *llm.HistoryStore) Option {
	return func(t *Tracker) { t.history = h }
}

func WithInvitations(s store.Store[types.Invitation]) Option {
	return func(t *Tracker) { t.invitations = store.NewGuard(s) }
}

// WithTimeZone pins calendar links to an IANA zone instead of floating times.
func WithTimeZone(tz string) Option {
	return func(t *Tracker) { t.timeZone = tz }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

func New(collaborator llm.Collaborator, searcher search.Searcher, deliverer chat.Deliverer, opts ...Option) *Tracker {
	t := &Tracker{
		collaborator: collaborator,
		recognizer:   intent.NewLocalRecognizer(),
		searcher:     searcher,
		deliverer:    deliverer,
		history:      llm.NewMemoryHistoryStore(llm.DefaultHistoryDepth),
		invitations:  store.NewGuard[types.Invitation](store.NewMemoryStore[types.Invitation]()),
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Advance handles one inbound message for sess and mutates it in place. The
// returned error is reserved for storage failures; every conversational
// failure is reported through the Outcome.
func (t *Tracker) Advance(ctx context.Context, sess *types.Session, input string) (*types.Outcome, error) {
	input = strings.TrimSpace(input)
	if sess.Stage == "" {
		sess.Stage = types.StageCollectingCuisine
	}
	defer func() { sess.UpdatedAt = t.now().UTC() }()

	res, err := t.recognizer.Recognize(ctx, &intent.Request{
		Input:      input,
		Stage:      sess.Stage,
		Candidates: sess.SearchResults,
	})
	if err != nil {
		t.logger.Warn("Intent recognition failed", "user", sess.UserID, "error", err)
		res = intent.Result{Intent: intent.None}
	}
	t.logger.Debug("Recognized intent", "user", sess.UserID, "stage", sess.Stage, "intent", res.Intent)

	switch res.Intent {
	case intent.RSVPAccept, intent.RSVPDecline:
		return t.handleRSVP(ctx, sess, res)
	case intent.Restart:
		return t.restart(ctx, sess), nil
	}

	switch sess.Stage {
	case types.StageAwaitingChoice:
		return t.choose(sess, res), nil
	case types.StageAwaitingInviteDecision:
		return t.decideInvite(sess, res), nil
	case types.StageCollectingInviteDetails:
		return t.collectInviteDetails(ctx, sess, input), nil
	case types.StageAwaitingRSVP:
		return t.awaitRSVP(ctx, sess)
	case types.StageDone:
		return types.OK(doneText), nil
	default:
		return t.collect(ctx, sess, input), nil
	}
}

func (t *Tracker) restart(ctx context.Context, sess *types.Session) *types.Outcome {
	sess.Reset()
	if err := t.history.Clear(ctx, sess.ConversationID); err != nil {
		t.logger.Warn("Failed to clear history", "conversation", sess.ConversationID, "error", err)
	}
	t.logger.Info("Session restarted", "user", sess.UserID)
	return types.OK(greetingText)
}

// converse runs one LLM turn with the conversation's history and records the
// exchange on success.
func (t *Tracker) converse(ctx context.Context, sess *types.Session, req *types.TurnRequest) (*llm.Reply, error) {
	hist, err := t.history.Load(ctx, sess.ConversationID)
	if err != nil {
		t.logger.Warn("Failed to load history", "conversation", sess.ConversationID, "error", err)
		hist = nil
	}
	reply, err := t.collaborator.Converse(ctx, req, hist)
	if err != nil {
		return nil, err
	}
	if _, err := t.history.Append(ctx, sess.ConversationID,
		schema.UserMessage(req.Input),
		schema.AssistantMessage(reply.Text, nil),
	); err != nil {
		t.logger.Warn("Failed to save history", "conversation", sess.ConversationID, "error", err)
	}
	return reply, nil
}

func (t *Tracker) turnRequest(sess *types.Session, input string) *types.TurnRequest {
	facts := types.FactsOf(sess)
	req := &types.TurnRequest{
		Now:        t.now(),
		Stage:      sess.Stage,
		Facts:      facts,
		Missing:    types.MissingFacts(sess.Stage, facts),
		Candidates: sess.SearchResults,
		Input:      input,
	}
	if c, ok := sess.ChosenCandidate(); ok {
		req.Venue = c.Name
	}
	return req
}

func (t *Tracker) collect(ctx context.Context, sess *types.Session, input string) *types.Outcome {
	reply, err := t.converse(ctx, sess, t.turnRequest(sess, input))
	if err != nil {
		t.logger.Error("LLM turn failed", "user", sess.UserID, "stage", sess.Stage, "error", err)
		return types.Failed(types.OutcomeLLMUnavailable, apologyText, fmt.Errorf("%w: %w", types.ErrLLMUnavailable, err))
	}
	t.applyOps(sess, reply.Ops)
	sess.Stage = sess.Stage.Max(sess.Slots.NextStage())

	if sess.Slots.Complete() && reply.Signal == llm.SignalSlotsComplete {
		return t.runSearch(ctx, sess, reply.Text)
	}
	return types.OK(reply.Text)
}

// applyOps patches the session's facts. Operations on unknown pointers or with
// values of the wrong type are skipped one by one; zero values never clear a
// slot.
func (t *Tracker) applyOps(sess *types.Session, ops []patch.Operation) {
	if len(ops) == 0 {
		return
	}
	allowed := types.FactsPointers()
	kept, rejected := patch.FilterOperations(ops, allowed)
	if len(rejected) > 0 {
		t.logger.Warn("Rejected patch operations", "user", sess.UserID, "ops", rejected)
	}
	facts := types.FactsOf(sess)
	next, err := patch.Apply(facts, kept, allowed)
	if err != nil {
		next = facts
		for _, op := range kept {
			applied, opErr := patch.Apply(next, []patch.Operation{op}, allowed)
			if opErr != nil {
				t.logger.Warn("Skipping patch operation", "user", sess.UserID, "op", op, "error", opErr)
				continue
			}
			next = applied
		}
	}
	t.logger.Debug("Applied patch", "user", sess.UserID, "ops", kept, "facts", next)
	mergeFacts(sess, next)
}

func mergeFacts(sess *types.Session, f types.Facts) {
	if v := strings.TrimSpace(f.Cuisine); v != "" {
		sess.Slots.Cuisine = v
	}
	if f.Budget >= 1 && f.Budget <= 4 {
		sess.Slots.Budget = f.Budget
	}
	if v := strings.TrimSpace(f.Location); v != "" {
		sess.Slots.Location = v
	}
	if f.RadiusMiles > 0 && !math.IsNaN(f.RadiusMiles) {
		sess.Slots.RadiusMiles = math.Min(f.RadiusMiles, types.MaxRadiusMiles)
	}
	if f.ReservationDate != "" {
		sess.Reservation.Date = f.ReservationDate
	}
	if f.ReservationTime != "" {
		sess.Reservation.Time = f.ReservationTime
	}
	if f.FriendID != "" {
		sess.Invite.FriendID = f.FriendID
	}
}
