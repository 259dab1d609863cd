package types

import "errors"

var (
	ErrSlotUnrecognized  = errors.New("slot unrecognized")
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrLLMUnavailable    = errors.New("llm unavailable")
)

type OutcomeKind string

const (
	OutcomeOK                OutcomeKind = "ok"
	OutcomeSlotUnrecognized  OutcomeKind = "slot_unrecognized"
	OutcomeSearchUnavailable OutcomeKind = "search_unavailable"
	OutcomeDeliveryFailed    OutcomeKind = "delivery_failed"
	OutcomeLLMUnavailable    OutcomeKind = "llm_unavailable"
)

// Outcome is what the tracker wants said back to the user for one inbound message.
type Outcome struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Kind        OutcomeKind  `json:"kind"`
	Err         error        `json:"-"`
}

func OK(text string, attachments ...Attachment) *Outcome {
	return &Outcome{Text: text, Attachments: attachments, Kind: OutcomeOK}
}

func Failed(kind OutcomeKind, text string, err error) *Outcome {
	return &Outcome{Text: text, Kind: kind, Err: err}
}
