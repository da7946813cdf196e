package session

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status int

const (
	Pending Status = iota
	Approved
	Rejected
)

var statusNames = map[Status]string{
	Pending:  "PENDING",
	Approved: "APPROVED",
	Rejected: "REJECTED",
}

var statusFromName = map[string]Status{
	"PENDING":  Pending,
	"APPROVED": Approved,
	"REJECTED": Rejected,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == Approved || s == Rejected
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := statusFromName[name]
	if !ok {
		return fmt.Errorf("unknown proposal status %q", name)
	}
	*s = v
	return nil
}

// Proposal is a single unit of work awaiting a decision.
type Proposal struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId"`
	Text      string     `json:"text"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	DecidedAt *time.Time `json:"decidedAt,omitempty"`
}

// Decide returns a copy of p resolved to Approved or Rejected. Only a
// pending proposal can be decided.
func (p Proposal) Decide(approved bool, at time.Time) (Proposal, error) {
	if p.Status != Pending {
		return p, fmt.Errorf("%w: proposal %s is %s", ErrAlreadyDecided, p.ID, p.Status)
	}
	out := p
	if approved {
		out.Status = Approved
	} else {
		out.Status = Rejected
	}
	out.DecidedAt = &at
	return out, nil
}

// Session is an isolated workspace holding the proposal history in arrival
// order.
type Session struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"createdAt"`
	Proposals []Proposal `json:"proposals"`
}

// Pending returns the session's pending proposal, if any.
func (s *Session) Pending() (Proposal, bool) {
	for _, p := range s.Proposals {
		if p.Status == Pending {
			return p, true
		}
	}
	return Proposal{}, false
}

func (s *Session) indexOf(proposalID string) int {
	for i := range s.Proposals {
		if s.Proposals[i].ID == proposalID {
			return i
		}
	}
	return -1
}

func (s *Session) clone() Session {
	out := *s
	out.Proposals = make([]Proposal, len(s.Proposals))
	copy(out.Proposals, s.Proposals)
	return out
}
