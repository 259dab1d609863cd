package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/chat"
	"github.com/tbxark/remi/llm"
	"github.com/tbxark/remi/llmtest"
	"github.com/tbxark/remi/patch"
	"github.com/tbxark/remi/search"
	"github.com/tbxark/remi/store"
	"github.com/tbxark/remi/types"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeCollaborator struct {
	mu      sync.Mutex
	replies []*llm.Reply
	err     error
	reqs    []types.TurnRequest
	// next, when set, answers every turn after the scripted replies run out.
	next llm.Collaborator
}

func (f *fakeCollaborator) Converse(ctx context.Context, req *types.TurnRequest, hist []*schema.Message) (*llm.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, *req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.replies) == 0 && f.next != nil {
		return f.next.Converse(ctx, req, hist)
	}
	if len(f.replies) == 0 {
		return &llm.Reply{Text: "Tell me more! 😋", Signal: llm.SignalNone}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeCollaborator) script(replies ...*llm.Reply) {
	f.mu.Lock()
	f.replies = append(f.replies, replies...)
	f.mu.Unlock()
}

func (f *fakeCollaborator) handOff(c llm.Collaborator) {
	f.mu.Lock()
	f.next = c
	f.mu.Unlock()
}

func (f *fakeCollaborator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []types.Candidate
	err     error
	slots   []types.Slots
}

func (f *fakeSearcher) Search(_ context.Context, slots types.Slots) ([]types.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slots = append(f.slots, slots)
	return f.results, f.err
}

func (f *fakeSearcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slots)
}

type sent struct {
	channel     string
	text        string
	attachments []types.Attachment
}

type fakeDeliverer struct {
	mu   sync.Mutex
	err  error
	sent []sent
}

func (f *fakeDeliverer) Send(_ context.Context, channel, text string, attachments ...types.Attachment) (*chat.DeliveryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, sent{channel: channel, text: text, attachments: attachments})
	return &chat.DeliveryResult{MessageID: "m", Channel: channel}, nil
}

func (f *fakeDeliverer) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type harness struct {
	llm       *fakeCollaborator
	searcher  *fakeSearcher
	deliverer *fakeDeliverer
	history   *llm.HistoryStore
	tracker   *Tracker
	service   *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		llm:       &fakeCollaborator{},
		searcher:  &fakeSearcher{},
		deliverer: &fakeDeliverer{},
		history:   llm.NewMemoryHistoryStore(llm.DefaultHistoryDepth),
	}
	h.tracker = New(h.llm, h.searcher, h.deliverer,
		WithHistory(h.history),
		WithInvitations(store.NewMemoryStore[types.Invitation]()),
		WithClock(func() time.Time { return fixedNow }),
	)
	h.service = NewService(store.NewMemoryStore[types.Session](), h.tracker)
	return h
}

func (h *harness) say(t *testing.T, user, text string) *types.Outcome {
	t.Helper()
	out, err := h.service.Handle(context.Background(), user, text)
	if err != nil {
		t.Fatalf("Handle(%q, %q): %v", user, text, err)
	}
	return out
}

func (h *harness) session(t *testing.T, user string) types.Session {
	t.Helper()
	s, err := h.service.Session(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func add(path string, v any) patch.Operation {
	return patch.Operation{Op: patch.OperationAdd, Path: path, Value: v}
}

func slotsReply(signal llm.Signal) *llm.Reply {
	return &llm.Reply{
		Text: "🍜 Cuisine noted: ramen. Thank you! Now searching...",
		Ops: []patch.Operation{
			add("/cuisine", "ramen"),
			add("/budget", 2),
			add("/location", "Boston, MA"),
			add("/radius_miles", 5.0),
		},
		Signal: signal,
	}
}

var threeResults = []types.Candidate{
	{Name: "Ramen House", Rating: 4.5, DisplayAddress: "1 A St, Boston, MA"},
	{Name: "Noodle Bar", Rating: 4.0, DisplayAddress: "1 Main St, Boston, MA"},
	{Name: "Pho Place", Rating: 3.5, DisplayAddress: "3 C St, Boston, MA"},
}

func TestCollectAdvancesStageBySlots(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.script(&llm.Reply{Text: "Ramen! 🍜 What's your budget?", Ops: []patch.Operation{add("/cuisine", "ramen")}})

	out := h.say(t, "alice", "I want ramen")
	if out.Kind != types.OutcomeOK || !strings.Contains(out.Text, "budget") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	s := h.session(t, "alice")
	if s.Slots.Cuisine != "ramen" || s.Stage != types.StageCollectingBudget {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.ConversationID != "alice-session" {
		t.Fatalf("unexpected conversation id %q", s.ConversationID)
	}
	req := h.llm.reqs[0]
	if len(req.Missing) != 4 || req.Input != "I want ramen" || !req.Now.Equal(fixedNow) {
		t.Fatalf("unexpected turn request %+v", req)
	}
}

func TestRadiusIsClampedToTwentyMiles(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.script(&llm.Reply{Text: "ok", Ops: []patch.Operation{add("/radius_miles", 35.0)}})
	h.say(t, "alice", "within 35 miles")
	if got := h.session(t, "alice").Slots.RadiusMiles; got != types.MaxRadiusMiles {
		t.Fatalf("expected radius clamped to 20, got %v", got)
	}
}

func TestSlotsAreNeverClearedByPatches(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.script(
		&llm.Reply{Text: "ok", Ops: []patch.Operation{add("/cuisine", "ramen")}},
		&llm.Reply{Text: "ok", Ops: []patch.Operation{
			{Op: patch.OperationReplace, Path: "/cuisine", Value: ""},
			{Op: patch.OperationRemove, Path: "/cuisine"},
			add("/stage", "done"),
		}},
	)
	h.say(t, "alice", "ramen")
	h.say(t, "alice", "hmm")
	s := h.session(t, "alice")
	if s.Slots.Cuisine != "ramen" || s.Stage != types.StageCollectingBudget {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestSearchRunsOncePerRoundAndAgainAfterRestart(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.results = threeResults

	// Complete slots without the signal: no search yet.
	h.llm.script(slotsReply(llm.SignalNone))
	h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")
	if n := h.searcher.calls(); n != 0 {
		t.Fatalf("search must wait for the completion signal, ran %d times", n)
	}
	if s := h.session(t, "alice"); s.Stage != types.StageSearching {
		t.Fatalf("expected searching stage, got %s", s.Stage)
	}

	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	out := h.say(t, "alice", "go!")
	if n := h.searcher.calls(); n != 1 {
		t.Fatalf("expected one search, got %d", n)
	}
	if !strings.Contains(out.Text, "2. **Noodle Bar**") {
		t.Fatalf("expected result list, got %q", out.Text)
	}
	s := h.session(t, "alice")
	if s.Stage != types.StageAwaitingChoice || len(s.SearchResults) != 3 || s.SearchID == "" {
		t.Fatalf("unexpected session %+v", s)
	}
	if got := h.searcher.slots[0]; got.Budget != 2 || got.RadiusMiles != 5 || got.Location != "Boston, MA" {
		t.Fatalf("unexpected search slots %+v", got)
	}
	firstSearch := s.SearchID

	// Picking a restaurant does not search again.
	h.say(t, "alice", "Top choice: 2")
	if n := h.searcher.calls(); n != 1 {
		t.Fatalf("choosing must not search, got %d searches", n)
	}

	h.say(t, "alice", "restart")
	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	h.say(t, "alice", "ramen again")
	if n := h.searcher.calls(); n != 2 {
		t.Fatalf("expected a second search after restart, got %d", n)
	}
	if s := h.session(t, "alice"); s.SearchID == firstSearch {
		t.Fatalf("new round must get a new search id")
	}
}

func TestSingleResultIsAutoSelected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.results = []types.Candidate{{Name: "Noodle Bar", Rating: 4.5, DisplayAddress: "1 Main St, Boston, MA"}}
	h.llm.script(slotsReply(llm.SignalSlotsComplete))

	out := h.say(t, "alice", "ramen, cheap, Boston, 5 miles")
	if !strings.Contains(out.Text, "Noodle Bar") {
		t.Fatalf("confirmation should name the venue: %q", out.Text)
	}
	if len(out.Attachments) != 1 || out.Attachments[0].Actions[0].Msg != "yes_clicked" {
		t.Fatalf("expected add-friends buttons, got %+v", out.Attachments)
	}
	s := h.session(t, "alice")
	if s.Stage != types.StageAwaitingInviteDecision || s.Chosen == nil || s.Chosen.Rank != 1 {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestSearchServerErrorIsReported(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.err = &search.StatusError{Code: 500, Body: `{"error":"internal"}`}
	h.llm.script(slotsReply(llm.SignalSlotsComplete))

	out := h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")
	if out.Kind != types.OutcomeSearchUnavailable || !strings.Contains(out.Text, "500") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !errors.Is(out.Err, types.ErrSearchUnavailable) {
		t.Fatalf("outcome error should wrap ErrSearchUnavailable: %v", out.Err)
	}
	s := h.session(t, "alice")
	if s.Stage == types.StageAwaitingChoice || s.Stage != types.StageSearching || len(s.SearchResults) != 0 {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestZeroResultsStaysSearching(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	out := h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")
	if !strings.Contains(out.Text, "adjusting your preferences") {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if s := h.session(t, "alice"); s.Stage != types.StageSearching {
		t.Fatalf("expected searching stage, got %s", s.Stage)
	}
}

func TestChooseOutOfRange(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.results = threeResults
	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")

	out := h.say(t, "alice", "Top choice: 7")
	if out.Kind != types.OutcomeSlotUnrecognized || !strings.Contains(out.Text, "between 1 and 3") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if s := h.session(t, "alice"); s.Stage != types.StageAwaitingChoice || s.Chosen != nil {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestSoloBooking(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.results = threeResults
	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")
	h.say(t, "alice", "1")

	out := h.say(t, "alice", "no_clicked")
	if !strings.Contains(out.Text, "Table for one") || !strings.Contains(out.Text, "Ramen House") {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if s := h.session(t, "alice"); s.Stage != types.StageDone {
		t.Fatalf("expected done, got %s", s.Stage)
	}
	if out := h.say(t, "alice", "thanks!"); out.Text != doneText {
		t.Fatalf("unexpected wrap-up %q", out.Text)
	}
}

func TestRestartResetsEverything(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.searcher.results = threeResults
	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")
	h.say(t, "alice", "2")

	out := h.say(t, "alice", "Can we START OVER?")
	if !strings.Contains(out.Text, "FEEEELING HUNGRY?") {
		t.Fatalf("expected greeting, got %q", out.Text)
	}
	s := h.session(t, "alice")
	want := types.NewSession("alice")
	if s.UserID != want.UserID || s.Stage != want.Stage || s.Slots != want.Slots ||
		len(s.SearchResults) != 0 || s.Chosen != nil || s.Reservation != want.Reservation || s.Invite != want.Invite || s.SearchID != "" {
		t.Fatalf("session not reset: %+v", s)
	}
	if hist, _ := h.history.Load(context.Background(), "alice-session"); len(hist) != 0 {
		t.Fatalf("history should be cleared, got %d messages", len(hist))
	}
}

func TestLLMFailureKeepsConversationGoing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.llm.err = types.ErrLLMUnavailable
	out := h.say(t, "alice", "hello")
	if out.Kind != types.OutcomeLLMUnavailable || out.Text != apologyText {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if s := h.session(t, "alice"); s.Stage != types.StageCollectingCuisine {
		t.Fatalf("unexpected stage %s", s.Stage)
	}
}

// bookTable walks alice to collecting_invite_details at Noodle Bar.
func bookTable(t *testing.T, h *harness) {
	t.Helper()
	h.searcher.results = threeResults
	h.llm.script(slotsReply(llm.SignalSlotsComplete))
	h.say(t, "alice", "ramen, mid-range, Boston, 5 miles")
	h.say(t, "alice", "Top choice: 2")
	h.say(t, "alice", "yes_clicked")
	if s := h.session(t, "alice"); s.Stage != types.StageCollectingInviteDetails {
		t.Fatalf("expected collecting_invite_details, got %s", s.Stage)
	}
}

func inviteReply() *llm.Reply {
	return &llm.Reply{
		Text: "Sending your invite! 💌",
		Ops: []patch.Operation{
			add("/reservation_date", "2025-03-08"),
			add("/reservation_time", "18:00"),
		},
	}
}

func TestInviteAndRSVPFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	bookTable(t, h)

	h.llm.script(inviteReply())
	out := h.say(t, "alice", "March 8th at 6pm with @john_doe")
	if out.Kind != types.OutcomeOK || !strings.Contains(out.Text, "@john_doe") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	msgs := h.deliverer.messages()
	if len(msgs) != 1 || msgs[0].channel != "@john_doe" || !strings.Contains(msgs[0].text, "Noodle Bar") {
		t.Fatalf("unexpected deliveries %+v", msgs)
	}
	if cb := msgs[0].attachments[0].Actions[0].Msg; cb != "yes_response_@john_doe" {
		t.Fatalf("unexpected RSVP callback %q", cb)
	}
	s := h.session(t, "alice")
	if s.Stage != types.StageAwaitingRSVP || !s.Invite.MessageSent || s.Reservation.Date != "2025-03-08" {
		t.Fatalf("unexpected session %+v", s)
	}

	if out := h.say(t, "alice", "any news?"); !strings.Contains(out.Text, "Still waiting") {
		t.Fatalf("expected waiting reply, got %q", out.Text)
	}

	llmCalls := h.llm.calls()
	out = h.say(t, "john_doe", "yes_response_@john_doe")
	if h.llm.calls() != llmCalls {
		t.Fatalf("RSVP must not consult the LLM")
	}
	if !strings.Contains(out.Text, "@john_doe") || !strings.Contains(out.Text, "dates=20250308T180000/20250308T190000") {
		t.Fatalf("unexpected RSVP reply %q", out.Text)
	}
	if !strings.Contains(out.Text, "text=Noodle%20Bar") {
		t.Fatalf("calendar link should name the venue: %q", out.Text)
	}

	msgs = h.deliverer.messages()
	if len(msgs) != 2 || msgs[1].channel != "@alice" {
		t.Fatalf("inviter should be notified once, got %+v", msgs)
	}
	h.say(t, "john_doe", "yes_response_@john_doe")
	if n := len(h.deliverer.messages()); n != 2 {
		t.Fatalf("inviter must be notified at most once, got %d deliveries", n)
	}

	out = h.say(t, "alice", "so?")
	if !strings.Contains(out.Text, "accepted") {
		t.Fatalf("expected accepted reply, got %q", out.Text)
	}
	if s := h.session(t, "alice"); s.Stage != types.StageDone {
		t.Fatalf("expected done, got %s", s.Stage)
	}
}

func TestRSVPDeclineWithoutInvitation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	out := h.say(t, "bob", "no_response_@bob")
	if out.Text != "😢 @bob has declined the invitation." {
		t.Fatalf("unexpected text %q", out.Text)
	}
	out = h.say(t, "bob", "yes_response_@bob")
	if !strings.Contains(out.Text, "Missing event details") || !strings.Contains(out.Text, "@bob") {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if h.llm.calls() != 0 {
		t.Fatalf("RSVP must not consult the LLM")
	}
	if n := len(h.deliverer.messages()); n != 0 {
		t.Fatalf("no one to notify, got %d deliveries", n)
	}
}

func TestInviteDeliveryFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	bookTable(t, h)
	h.deliverer.err = &chat.DeliveryError{Channel: "@john_doe", Code: 400, Body: "room not found"}

	h.llm.script(inviteReply())
	out := h.say(t, "alice", "March 8th at 6pm with @john_doe")
	if out.Kind != types.OutcomeDeliveryFailed || !errors.Is(out.Err, types.ErrDeliveryFailed) {
		t.Fatalf("unexpected outcome %+v", out)
	}
	s := h.session(t, "alice")
	if s.Stage != types.StageCollectingInviteDetails || s.Invite.MessageSent {
		t.Fatalf("stage must not advance on delivery failure: %+v", s)
	}
}

func TestExampleHandleInModelReplyIsNotInvited(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	bookTable(t, h)
	model := llmtest.New().Reply("Reservation date: March 8th\nReservation time: 6 PM\nWho should I invite? Tag them, e.g. @john_doe!")
	h.llm.handOff(llm.NewMarkerCollaborator(model))

	out := h.say(t, "alice", "March 8th at 6pm please")
	if out.Kind != types.OutcomeOK || !strings.Contains(out.Text, "Who should I invite") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if n := len(h.deliverer.messages()); n != 0 {
		t.Fatalf("nobody was named by the user, got %d deliveries", n)
	}
	s := h.session(t, "alice")
	if s.Stage != types.StageCollectingInviteDetails || s.Invite.FriendID != "" {
		t.Fatalf("expected to keep asking for the friend, got %+v", s)
	}
	if s.Reservation.Date != "2025-03-08" || s.Reservation.Time != "18:00" {
		t.Fatalf("reservation markers should still apply: %+v", s.Reservation)
	}
}

func TestConcurrentMessagesAreSerialized(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.service.Handle(context.Background(), "alice", "hi"); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := h.llm.calls(); n != 20 {
		t.Fatalf("expected 20 turns, got %d", n)
	}
	hist, err := h.history.Load(context.Background(), "alice-session")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) == 0 || len(hist) > llm.DefaultHistoryDepth {
		t.Fatalf("unexpected history length %d", len(hist))
	}
}

func TestInvitationKey(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"@John_Doe", "john_doe", " @john_doe "} {
		if got := InvitationKey(in); got != "@john_doe" {
			t.Errorf("InvitationKey(%q) = %q", in, got)
		}
	}
}
