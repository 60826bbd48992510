package session

import "github.com/rendis/flowdesk/pkg/schema"

// Affordances are the flow actions offered to the current user. They hide
// controls; they grant nothing.
type Affordances struct {
	CanEdit    bool `json:"can_edit"`
	CanSubmit  bool `json:"can_submit"`
	CanPublish bool `json:"can_publish"`
}

// AffordancesFor derives the actions for s on f. Only the owner acts:
// edit and submit while DRAFT, publish while IN_REVIEW. A nil session
// gets nothing.
func AffordancesFor(s *Session, f schema.Flow) Affordances {
	if !s.Owns(f) {
		return Affordances{}
	}
	return Affordances{
		CanEdit:    f.Status == schema.FlowStatusDraft,
		CanSubmit:  f.Status == schema.FlowStatusDraft,
		CanPublish: f.Status == schema.FlowStatusInReview,
	}
}
