package lifecycle

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rendis/flowdesk/pkg/schema"
)

// TransitionHook is called before or after a state transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store; used by the FSM to record transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *schema.EditorEvent) error
}

type hookKey struct {
	from, to schema.FlowStatus
}

// ValidFlowTransitions defines the allowed lifecycle moves of a flow.
var ValidFlowTransitions = map[schema.FlowStatus][]schema.FlowStatus{
	schema.FlowStatusDraft:     {schema.FlowStatusInReview},
	schema.FlowStatusInReview:  {schema.FlowStatusEffective},
	schema.FlowStatusEffective: {},
}

// FlowFSM checks flow lifecycle transitions before they are requested from
// the backend. The backend stays authoritative; this only stops requests
// that cannot succeed.
type FlowFSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewFlowFSM creates a FlowFSM that records transitions via the given appender.
// A nil appender disables recording.
func NewFlowFSM(appender EventAppender) *FlowFSM {
	return &FlowFSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition. A hook error aborts it.
func (f *FlowFSM) OnBefore(from, to schema.FlowStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FlowFSM) OnAfter(from, to schema.FlowStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Check validates a transition without running hooks or recording it.
func (f *FlowFSM) Check(flowID string, from, to schema.FlowStatus) error {
	if !CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid flow transition: %s -> %s", from, to).
			WithDetails(map[string]any{"flow_id": flowID, "from": string(from), "to": string(to)})
	}
	return nil
}

// Transition validates a transition, runs the before hooks, records a
// flow_transitioned event and runs the after hooks.
func (f *FlowFSM) Transition(ctx context.Context, flowID string, from, to schema.FlowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.Check(flowID, from, to); err != nil {
		return err
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if f.appender != nil {
		payload, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
		event := &schema.EditorEvent{
			FlowID:  flowID,
			Kind:    schema.EventFlowTransitioned,
			Payload: payload,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "record flow transition: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

// CanTransition reports whether from -> to is a lifecycle move.
func CanTransition(from, to schema.FlowStatus) bool {
	allowed, ok := ValidFlowTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Editable reports whether a flow in this status accepts edits.
func Editable(s schema.FlowStatus) bool {
	return s == schema.FlowStatusDraft
}
