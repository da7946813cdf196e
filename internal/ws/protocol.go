package ws

import (
	"encoding/json"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

type MessageType string

const (
	MsgProposalCreated MessageType = MessageType(session.EventProposalCreated)
	MsgProposalUpdated MessageType = MessageType(session.EventProposalUpdated)
	MsgError           MessageType = "error"
)

// WSMessage is one frame on a subscribe stream. Seq counts event frames per
// stream starting at 1; error frames carry no seq.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// RawMessage is WSMessage as seen by a reader that decodes the payload
// itself once it knows the type.
type RawMessage struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error ErrorPayload `json:"error"`
}

type SessionResponse struct {
	Session session.Session `json:"session"`
}

type ProposalResponse struct {
	Proposal session.Proposal `json:"proposal"`
}

type SubmitProposalRequest struct {
	Text string `json:"text"`
}

// SubmitDecisionRequest requires Approved to be present; a missing field is
// an invalid argument rather than an implicit rejection.
type SubmitDecisionRequest struct {
	Approved *bool `json:"approved"`
}
