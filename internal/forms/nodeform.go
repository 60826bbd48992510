package forms

import (
	"slices"
	"strings"

	"github.com/rendis/flowdesk/pkg/schema"
)

// NodeForm is the edit model of a node record. Numbers and enums are kept
// as typed text so that invalid input can be shown and reported.
type NodeForm struct {
	ID           string      `json:"id"`
	NodeNo       string      `json:"node_no"`
	Name         string      `json:"name"`
	Intro        string      `json:"intro"`
	ExecForm     string      `json:"exec_form"`
	DurationMin  string      `json:"duration_min"`
	DurationMax  string      `json:"duration_max"`
	DurationUnit string      `json:"duration_unit"`
	RACI         schema.RACI `json:"raci"`
	PrereqText   string      `json:"prereq_text"`
	OutputsText  string      `json:"outputs_text"`
	Subtasks     []string    `json:"subtasks"`
}

// FromNode fills a form from a record. A missing unit shows as DAY.
func FromNode(n schema.FlowNode) NodeForm {
	f := NodeForm{
		ID:           n.ID,
		NodeNo:       n.NodeNo,
		Name:         n.Name,
		Intro:        n.Intro,
		ExecForm:     string(n.ExecForm),
		DurationUnit: string(n.DurationUnit),
		RACI:         n.RACI.Clone(),
		PrereqText:   n.PrereqText,
		OutputsText:  n.OutputsText,
		Subtasks:     slices.Clone(n.Subtasks),
	}
	if f.DurationUnit == "" {
		f.DurationUnit = string(schema.DurationUnitDay)
	}
	if n.DurationMin != nil {
		f.DurationMin = formatNumber(*n.DurationMin)
	}
	if n.DurationMax != nil {
		f.DurationMax = formatNumber(*n.DurationMax)
	}
	if f.Subtasks == nil {
		f.Subtasks = []string{}
	}
	return f
}

// ToNode applies the form onto base, which supplies the fields the form
// does not edit (flow id, sort order). Blank bounds become nil and RACI
// columns left empty are dropped. Invalid forms return the field errors as
// a VALIDATION_ERROR.
func (f NodeForm) ToNode(base schema.FlowNode) (schema.FlowNode, error) {
	if errs := Validate(f); !errs.Empty() {
		return base, errs.Err()
	}

	n := base.Clone()
	if f.ID != "" {
		n.ID = f.ID
	}
	n.NodeNo = strings.TrimSpace(f.NodeNo)
	n.Name = strings.TrimSpace(f.Name)
	n.Intro = f.Intro
	n.ExecForm = schema.ExecForm(f.ExecForm)
	n.DurationMin, _ = parseBound(f.DurationMin)
	n.DurationMax, _ = parseBound(f.DurationMax)
	n.DurationUnit = schema.DurationUnit(f.DurationUnit)
	if n.DurationUnit == "" {
		n.DurationUnit = schema.DurationUnitDay
	}
	n.PrereqText = f.PrereqText
	n.OutputsText = f.OutputsText

	n.RACI = schema.RACI{}
	for k, v := range f.RACI {
		if len(v) > 0 {
			n.RACI[k] = slices.Clone(v)
		}
	}
	n.Subtasks = slices.Clone(f.Subtasks)
	if n.Subtasks == nil {
		n.Subtasks = []string{}
	}
	return n, nil
}
