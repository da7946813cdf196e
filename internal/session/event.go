package session

// EventType discriminates the variants of Event.
type EventType string

const (
	EventProposalCreated EventType = "proposal_created"
	EventProposalUpdated EventType = "proposal_updated"
)

// Event is published to session subscribers. It is one of ProposalCreated or
// ProposalUpdated and always carries a full proposal snapshot, so receivers
// can apply it as an upsert.
type Event interface {
	Type() EventType
	Snapshot() Proposal
	sessionEvent()
}

// ProposalCreated reports a newly admitted proposal.
type ProposalCreated struct {
	Proposal Proposal
}

// ProposalUpdated reports a proposal whose status changed.
type ProposalUpdated struct {
	Proposal Proposal
}

func (ProposalCreated) Type() EventType      { return EventProposalCreated }
func (e ProposalCreated) Snapshot() Proposal { return e.Proposal }
func (ProposalCreated) sessionEvent()        {}

func (ProposalUpdated) Type() EventType      { return EventProposalUpdated }
func (e ProposalUpdated) Snapshot() Proposal { return e.Proposal }
func (ProposalUpdated) sessionEvent()        {}

// HistoryEvent is the replay form of a stored proposal: pending proposals
// replay as created, decided ones as updated.
func HistoryEvent(p Proposal) Event {
	if p.Status == Pending {
		return ProposalCreated{Proposal: p}
	}
	return ProposalUpdated{Proposal: p}
}
