package schema

import (
	"encoding/json"
	"slices"
	"time"
)

// FlowStatus is the lifecycle state of a flow.
type FlowStatus string

const (
	FlowStatusDraft     FlowStatus = "DRAFT"
	FlowStatusInReview  FlowStatus = "IN_REVIEW"
	FlowStatusEffective FlowStatus = "EFFECTIVE"
)

func (s FlowStatus) Valid() bool {
	switch s {
	case FlowStatusDraft, FlowStatusInReview, FlowStatusEffective:
		return true
	}
	return false
}

// ExecForm is how a flow step is carried out.
type ExecForm string

const (
	ExecFormSystemApproval  ExecForm = "SYSTEM_APPROVAL"
	ExecFormOfflineMeeting  ExecForm = "OFFLINE_MEETING"
	ExecFormEmailConfirm    ExecForm = "EMAIL_CONFIRM"
	ExecFormDocReview       ExecForm = "DOC_REVIEW"
	ExecFormSystemOperation ExecForm = "SYSTEM_OPERATION"
)

// ExecForms lists every execution form in display order.
var ExecForms = []ExecForm{
	ExecFormSystemApproval,
	ExecFormOfflineMeeting,
	ExecFormEmailConfirm,
	ExecFormDocReview,
	ExecFormSystemOperation,
}

func (e ExecForm) Valid() bool {
	switch e {
	case ExecFormSystemApproval, ExecFormOfflineMeeting, ExecFormEmailConfirm,
		ExecFormDocReview, ExecFormSystemOperation:
		return true
	}
	return false
}

// DurationUnit is the unit of a node's duration range.
type DurationUnit string

const (
	DurationUnitMinute DurationUnit = "MINUTE"
	DurationUnitHour   DurationUnit = "HOUR"
	DurationUnitDay    DurationUnit = "DAY"
	DurationUnitWeek   DurationUnit = "WEEK"
)

func (d DurationUnit) Valid() bool {
	switch d {
	case DurationUnitMinute, DurationUnitHour, DurationUnitDay, DurationUnitWeek:
		return true
	}
	return false
}

// Days returns how many days one unit spans. Unknown units count as days.
func (d DurationUnit) Days() float64 {
	switch d {
	case DurationUnitMinute:
		return 1.0 / 1440
	case DurationUnitHour:
		return 1.0 / 24
	case DurationUnitWeek:
		return 7
	case DurationUnitDay:
		return 1
	}
	return 1
}

// RACIKey names a responsibility column.
type RACIKey string

const (
	RACIResponsible RACIKey = "R"
	RACIAccountable RACIKey = "A"
	RACISupportive  RACIKey = "S"
	RACIConsulted   RACIKey = "C"
	RACIInformed    RACIKey = "I"
)

// RACIKeys lists the responsibility columns in display order.
var RACIKeys = []RACIKey{RACIResponsible, RACIAccountable, RACISupportive, RACIConsulted, RACIInformed}

func (k RACIKey) Valid() bool {
	switch k {
	case RACIResponsible, RACIAccountable, RACISupportive, RACIConsulted, RACIInformed:
		return true
	}
	return false
}

// RACI maps a responsibility column to its assignees.
type RACI map[RACIKey][]string

// Clone returns a deep copy.
func (r RACI) Clone() RACI {
	out := make(RACI, len(r))
	for k, v := range r {
		out[k] = slices.Clone(v)
	}
	return out
}

// Empty reports whether no column has an assignee.
func (r RACI) Empty() bool {
	for _, v := range r {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Role is the account role carried in the session token.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Flow is the workflow aggregate as served by the backend.
type Flow struct {
	ID              string     `json:"id"`
	FlowNo          string     `json:"flow_no"`
	Title           string     `json:"title"`
	OwnerID         string     `json:"owner_id"`
	OwnerDeptID     string     `json:"owner_dept_id"`
	Overview        string     `json:"overview"`
	Status          FlowStatus `json:"status"`
	DiagramJSON     string     `json:"diagram_json"`
	LatestVersionID string     `json:"latest_version_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FlowNode is the business record behind one diagram node.
// RACI and Subtasks travel as JSON strings (raci_json, subtasks_json) on the wire.
type FlowNode struct {
	ID           string       `json:"id"`
	FlowID       string       `json:"flow_id"`
	NodeNo       string       `json:"node_no"`
	Name         string       `json:"name"`
	Intro        string       `json:"intro"`
	ExecForm     ExecForm     `json:"exec_form"`
	DurationMin  *float64     `json:"duration_min"`
	DurationMax  *float64     `json:"duration_max"`
	DurationUnit DurationUnit `json:"duration_unit"`
	RACI         RACI         `json:"-"`
	PrereqText   string       `json:"prereq_text"`
	OutputsText  string       `json:"outputs_text"`
	Subtasks     []string     `json:"-"`
	SortOrder    int          `json:"sort_order"`
}

type flowNodeAlias FlowNode

type flowNodeWire struct {
	flowNodeAlias
	RACIJSON     string `json:"raci_json"`
	SubtasksJSON string `json:"subtasks_json"`
}

func (n FlowNode) MarshalJSON() ([]byte, error) {
	w := flowNodeWire{flowNodeAlias: flowNodeAlias(n), SubtasksJSON: "[]"}
	if !n.RACI.Empty() {
		raw, err := json.Marshal(n.RACI)
		if err != nil {
			return nil, err
		}
		w.RACIJSON = string(raw)
	}
	if len(n.Subtasks) > 0 {
		raw, err := json.Marshal(n.Subtasks)
		if err != nil {
			return nil, err
		}
		w.SubtasksJSON = string(raw)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form. Malformed raci_json or subtasks_json
// yield empty values rather than an error.
func (n *FlowNode) UnmarshalJSON(data []byte) error {
	var w flowNodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = FlowNode(w.flowNodeAlias)
	n.RACI = RACI{}
	if w.RACIJSON != "" {
		var raw map[string][]string
		if json.Unmarshal([]byte(w.RACIJSON), &raw) == nil {
			for k, v := range raw {
				if key := RACIKey(k); key.Valid() {
					n.RACI[key] = v
				}
			}
		}
	}
	n.Subtasks = []string{}
	if w.SubtasksJSON != "" {
		var subtasks []string
		if json.Unmarshal([]byte(w.SubtasksJSON), &subtasks) == nil && subtasks != nil {
			n.Subtasks = subtasks
		}
	}
	return nil
}

// Clone returns a deep copy of the node.
func (n FlowNode) Clone() FlowNode {
	out := n
	if n.DurationMin != nil {
		v := *n.DurationMin
		out.DurationMin = &v
	}
	if n.DurationMax != nil {
		v := *n.DurationMax
		out.DurationMax = &v
	}
	out.RACI = n.RACI.Clone()
	out.Subtasks = slices.Clone(n.Subtasks)
	if out.Subtasks == nil {
		out.Subtasks = []string{}
	}
	return out
}

// FlowDetail is the response body of GET /flows/{id}.
type FlowDetail struct {
	Flow                 Flow       `json:"flow"`
	Nodes                []FlowNode `json:"nodes"`
	TotalDurationMinDays float64    `json:"total_duration_min_days"`
	TotalDurationMaxDays float64    `json:"total_duration_max_days"`
}

// FlowVersion is an immutable snapshot of a flow.
type FlowVersion struct {
	ID           string    `json:"id"`
	FlowID       string    `json:"flow_id"`
	SnapshotJSON string    `json:"snapshot_json"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot decodes the version's snapshot payload.
func (v FlowVersion) Snapshot() (FlowDetail, error) {
	var detail FlowDetail
	if err := json.Unmarshal([]byte(v.SnapshotJSON), &detail); err != nil {
		return FlowDetail{}, NewErrorf(ErrCodeValidation, "version %s: malformed snapshot", v.ID).WithCause(err)
	}
	return detail, nil
}

// UpdateFlowRequest is the body of PUT /flows/{id}.
type UpdateFlowRequest struct {
	Title       string     `json:"title"`
	OwnerDeptID string     `json:"owner_dept_id"`
	Overview    string     `json:"overview"`
	DiagramJSON string     `json:"diagram_json"`
	Nodes       []FlowNode `json:"nodes"`
}

// FlowSummary is one row of GET /flows.
type FlowSummary struct {
	ID        string     `json:"id"`
	FlowNo    string     `json:"flow_no"`
	Title     string     `json:"title"`
	OwnerID   string     `json:"owner_id"`
	Status    FlowStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}
