// Package forms holds the node panel's presentation and edit rules: the
// read view, the edit model, tag inputs and field validation.
package forms

import "github.com/rendis/flowdesk/pkg/schema"

// ExecFormLabel is the display name of an execution form. Unknown values
// are shown as received.
func ExecFormLabel(e schema.ExecForm) string {
	switch e {
	case schema.ExecFormSystemApproval:
		return "System approval"
	case schema.ExecFormOfflineMeeting:
		return "Offline meeting"
	case schema.ExecFormEmailConfirm:
		return "Email confirmation"
	case schema.ExecFormDocReview:
		return "Document review"
	case schema.ExecFormSystemOperation:
		return "System operation"
	}
	return string(e)
}

func StatusLabel(s schema.FlowStatus) string {
	switch s {
	case schema.FlowStatusDraft:
		return "Draft"
	case schema.FlowStatusInReview:
		return "In review"
	case schema.FlowStatusEffective:
		return "Effective"
	}
	return string(s)
}

func RACILabel(k schema.RACIKey) string {
	switch k {
	case schema.RACIResponsible:
		return "Responsible (R)"
	case schema.RACIAccountable:
		return "Accountable (A)"
	case schema.RACISupportive:
		return "Supportive (S)"
	case schema.RACIConsulted:
		return "Consulted (C)"
	case schema.RACIInformed:
		return "Informed (I)"
	}
	return string(k)
}

func DurationUnitLabel(u schema.DurationUnit) string {
	switch u {
	case schema.DurationUnitMinute:
		return "minutes"
	case schema.DurationUnitHour:
		return "hours"
	case schema.DurationUnitDay:
		return "days"
	case schema.DurationUnitWeek:
		return "weeks"
	}
	return string(u)
}

// FieldLabel names an edit-form field in messages.
func FieldLabel(field string) string {
	switch field {
	case FieldName:
		return "Name"
	case FieldNodeNo:
		return "Number"
	case FieldExecForm:
		return "Execution form"
	case FieldDurationMin:
		return "Minimum duration"
	case FieldDurationMax:
		return "Maximum duration"
	case FieldDurationUnit:
		return "Duration unit"
	case FieldDuration:
		return "Duration"
	case FieldRACI:
		return "RACI"
	case FieldSubtasks:
		return "Subtasks"
	}
	return field
}
