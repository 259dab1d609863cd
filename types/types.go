package types

import (
	"time"
)

type Stage string

const (
	StageCollectingCuisine       Stage = "collecting_cuisine"
	StageCollectingBudget        Stage = "collecting_budget"
	StageCollectingLocation      Stage = "collecting_location"
	StageCollectingRadius        Stage = "collecting_radius"
	StageSearching               Stage = "searching"
	StageAwaitingChoice          Stage = "awaiting_choice"
	StageAwaitingInviteDecision  Stage = "awaiting_invite_decision"
	StageCollectingInviteDetails Stage = "collecting_invite_details"
	StageAwaitingRSVP            Stage = "awaiting_rsvp"
	StageDone                    Stage = "done"
)

var stageOrder = map[Stage]int{
	StageCollectingCuisine:       0,
	StageCollectingBudget:        1,
	StageCollectingLocation:      2,
	StageCollectingRadius:        3,
	StageSearching:               4,
	StageAwaitingChoice:          5,
	StageAwaitingInviteDecision:  6,
	StageCollectingInviteDetails: 7,
	StageAwaitingRSVP:            8,
	StageDone:                    9,
}

// Rank orders stages along the dialogue. Unknown stages rank as the first one.
func (s Stage) Rank() int {
	return stageOrder[s]
}

func (s Stage) Collecting() bool {
	return s.Rank() < StageSearching.Rank()
}

// Max returns whichever of s and other is further along.
func (s Stage) Max(other Stage) Stage {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

const MaxRadiusMiles = 20.0

type Slots struct {
	Cuisine     string  `json:"cuisine,omitempty"`
	Budget      int     `json:"budget,omitempty"`
	Location    string  `json:"location,omitempty"`
	RadiusMiles float64 `json:"radius_miles,omitempty"`
}

func (s Slots) Complete() bool {
	return s.Cuisine != "" && s.Budget > 0 && s.Location != "" && s.RadiusMiles > 0
}

// NextStage is the collecting stage for the first unset slot, or StageSearching.
func (s Slots) NextStage() Stage {
	switch {
	case s.Cuisine == "":
		return StageCollectingCuisine
	case s.Budget == 0:
		return StageCollectingBudget
	case s.Location == "":
		return StageCollectingLocation
	case s.RadiusMiles <= 0:
		return StageCollectingRadius
	default:
		return StageSearching
	}
}

type Candidate struct {
	Name           string  `json:"name"`
	Rating         float64 `json:"rating"`
	DisplayAddress string  `json:"display_address"`
}

// Choice points at a search result by 1-based rank, or carries a free-form venue.
type Choice struct {
	Rank  int    `json:"rank,omitempty"`
	Venue string `json:"venue,omitempty"`
}

type Reservation struct {
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

func (r Reservation) Complete() bool {
	return r.Date != "" && r.Time != ""
}

type Invite struct {
	FriendID    string `json:"friend_id,omitempty"`
	MessageSent bool   `json:"message_sent"`
}

type Session struct {
	UserID         string      `json:"user_id"`
	ConversationID string      `json:"conversation_id"`
	Stage          Stage       `json:"stage"`
	Slots          Slots       `json:"slots"`
	SearchID       string      `json:"search_id,omitempty"`
	SearchResults  []Candidate `json:"search_results"`
	Chosen         *Choice     `json:"chosen,omitempty"`
	Reservation    Reservation `json:"reservation"`
	Invite         Invite      `json:"invite"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

func NewSession(userID string) Session {
	return Session{
		UserID:         userID,
		ConversationID: userID + "-session",
		Stage:          StageCollectingCuisine,
		SearchResults:  []Candidate{},
	}
}

// Reset clears everything but the identity keys.
func (s *Session) Reset() {
	*s = Session{
		UserID:         s.UserID,
		ConversationID: s.ConversationID,
		Stage:          StageCollectingCuisine,
		SearchResults:  []Candidate{},
	}
}

// ChosenCandidate resolves Chosen against SearchResults.
func (s *Session) ChosenCandidate() (Candidate, bool) {
	if s.Chosen == nil {
		return Candidate{}, false
	}
	if s.Chosen.Rank >= 1 && s.Chosen.Rank <= len(s.SearchResults) {
		return s.SearchResults[s.Chosen.Rank-1], true
	}
	if s.Chosen.Venue != "" {
		return Candidate{Name: s.Chosen.Venue}, true
	}
	return Candidate{}, false
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

type Invitation struct {
	InviterID string           `json:"inviter_id"`
	FriendID  string           `json:"friend_id"`
	Venue     string           `json:"venue"`
	Address   string           `json:"address,omitempty"`
	Date      string           `json:"date,omitempty"`
	Time      string           `json:"time,omitempty"`
	Status    InvitationStatus `json:"status"`
	SentAt    time.Time        `json:"sent_at"`
}

// Facts is the flat document the LLM patches. Zero values mean unset.
type Facts struct {
	Cuisine         string  `json:"cuisine,omitempty" jsonschema:"description=Type of food the user wants"`
	Budget          int     `json:"budget,omitempty" jsonschema:"description=Price tier 1 (cheap) to 4 (fine dining),minimum=1,maximum=4"`
	Location        string  `json:"location,omitempty" jsonschema:"description=City and state or zip code to search around"`
	RadiusMiles     float64 `json:"radius_miles,omitempty" jsonschema:"description=Search radius in miles (at most 20),exclusiveMinimum=0,maximum=20"`
	ReservationDate string  `json:"reservation_date,omitempty" jsonschema:"description=Reservation date formatted YYYY-MM-DD"`
	ReservationTime string  `json:"reservation_time,omitempty" jsonschema:"description=Reservation time formatted HH:MM (24 hour)"`
	FriendID        string  `json:"friend_id,omitempty" jsonschema:"description=Chat handle of the friend to invite (e.g. @john_doe)"`
}

func FactsPointers() []string {
	return []string{
		"/cuisine",
		"/budget",
		"/location",
		"/radius_miles",
		"/reservation_date",
		"/reservation_time",
		"/friend_id",
	}
}

// FactsOf projects the session onto the LLM-facing document.
func FactsOf(s *Session) Facts {
	return Facts{
		Cuisine:         s.Slots.Cuisine,
		Budget:          s.Slots.Budget,
		Location:        s.Slots.Location,
		RadiusMiles:     s.Slots.RadiusMiles,
		ReservationDate: s.Reservation.Date,
		ReservationTime: s.Reservation.Time,
		FriendID:        s.Invite.FriendID,
	}
}

type FieldInfo struct {
	JSONPointer string `json:"json_pointer"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// MissingFacts lists what the current stage still needs from the user.
func MissingFacts(stage Stage, f Facts) []FieldInfo {
	var missing []FieldInfo
	if stage == StageCollectingInviteDetails {
		if f.ReservationDate == "" {
			missing = append(missing, FieldInfo{JSONPointer: "/reservation_date", DisplayName: "Reservation date", Required: true})
		}
		if f.ReservationTime == "" {
			missing = append(missing, FieldInfo{JSONPointer: "/reservation_time", DisplayName: "Reservation time", Required: true})
		}
		if f.FriendID == "" {
			missing = append(missing, FieldInfo{JSONPointer: "/friend_id", DisplayName: "Friend's chat ID", Description: "Rocket.Chat handle starting with @", Required: true})
		}
		return missing
	}
	if f.Cuisine == "" {
		missing = append(missing, FieldInfo{JSONPointer: "/cuisine", DisplayName: "Cuisine", Required: true})
	}
	if f.Budget == 0 {
		missing = append(missing, FieldInfo{JSONPointer: "/budget", DisplayName: "Budget", Description: "cheap=1, mid-range=2, expensive=3, fine dining=4", Required: true})
	}
	if f.Location == "" {
		missing = append(missing, FieldInfo{JSONPointer: "/location", DisplayName: "Location", Description: "city, state or zip code", Required: true})
	}
	if f.RadiusMiles <= 0 {
		missing = append(missing, FieldInfo{JSONPointer: "/radius_miles", DisplayName: "Search radius", Description: "miles, at most 20", Required: true})
	}
	return missing
}

// Action is a chat button. Clicking it posts Msg back as an ordinary message.
type Action struct {
	Type              string `json:"type"`
	Text              string `json:"text"`
	Msg               string `json:"msg"`
	MsgInChatWindow   bool   `json:"msg_in_chat_window"`
	MsgProcessingType string `json:"msg_processing_type"`
	ButtonID          string `json:"button_id,omitempty"`
}

type Attachment struct {
	Title   string   `json:"title,omitempty"`
	Text    string   `json:"text,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}
