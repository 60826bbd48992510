package forms

import (
	"strconv"
	"strings"

	"github.com/rendis/flowdesk/pkg/schema"
)

// SectionKind identifies a block of the node read view.
type SectionKind string

const (
	SectionIntro    SectionKind = "intro"
	SectionExecForm SectionKind = "exec_form"
	SectionDuration SectionKind = "duration"
	SectionRACI     SectionKind = "raci"
	SectionPrereq   SectionKind = "prereq"
	SectionOutputs  SectionKind = "outputs"
	SectionSubtasks SectionKind = "subtasks"
)

// RACIRow is one filled responsibility column.
type RACIRow struct {
	Key    schema.RACIKey `json:"key"`
	Label  string         `json:"label"`
	Values []string       `json:"values"`
}

// Section is one block of the read view. Text carries the body for text
// sections, Rows the RACI table and Items the subtask list.
type Section struct {
	Kind  SectionKind `json:"kind"`
	Title string      `json:"title"`
	Text  string      `json:"text,omitempty"`
	Rows  []RACIRow   `json:"rows,omitempty"`
	Items []string    `json:"items,omitempty"`
}

// ReadView lays out a node record for display. Empty fields produce no
// section.
func ReadView(n schema.FlowNode) []Section {
	var out []Section
	if n.Intro != "" {
		out = append(out, Section{Kind: SectionIntro, Title: "Description", Text: n.Intro})
	}
	if n.ExecForm != "" {
		out = append(out, Section{Kind: SectionExecForm, Title: "Execution form", Text: ExecFormLabel(n.ExecForm)})
	}
	if text := DurationText(n.DurationMin, n.DurationMax, n.DurationUnit); text != "" {
		out = append(out, Section{Kind: SectionDuration, Title: "Standard duration", Text: text})
	}
	if rows := raciRows(n.RACI); len(rows) > 0 {
		out = append(out, Section{Kind: SectionRACI, Title: "RACI", Rows: rows})
	}
	if n.PrereqText != "" {
		out = append(out, Section{Kind: SectionPrereq, Title: "Prerequisites", Text: n.PrereqText})
	}
	if n.OutputsText != "" {
		out = append(out, Section{Kind: SectionOutputs, Title: "Outputs", Text: n.OutputsText})
	}
	if len(n.Subtasks) > 0 {
		out = append(out, Section{Kind: SectionSubtasks, Title: "Subtasks", Items: append([]string(nil), n.Subtasks...)})
	}
	return out
}

func raciRows(r schema.RACI) []RACIRow {
	var rows []RACIRow
	for _, k := range schema.RACIKeys {
		if v := r[k]; len(v) > 0 {
			rows = append(rows, RACIRow{Key: k, Label: RACILabel(k), Values: append([]string(nil), v...)})
		}
	}
	return rows
}

// DurationText renders a duration range: "2 ~ 5 days", "≥ 2 days",
// "≤ 5 days", or "" without bounds. HOUR reads as hours; every other unit
// reads as days.
func DurationText(minV, maxV *float64, unit schema.DurationUnit) string {
	label := "days"
	if unit == schema.DurationUnitHour {
		label = "hours"
	}
	switch {
	case minV != nil && maxV != nil:
		return formatNumber(*minV) + " ~ " + formatNumber(*maxV) + " " + label
	case minV != nil:
		return "≥ " + formatNumber(*minV) + " " + label
	case maxV != nil:
		return "≤ " + formatNumber(*maxV) + " " + label
	}
	return ""
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// JoinValues renders RACI assignees on one line.
func JoinValues(values []string) string {
	return strings.Join(values, ", ")
}
