package forms

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/flowdesk/pkg/schema"
)

// Field keys, matching the backend's validation error fields.
const (
	FieldNodeNo       = "node_no"
	FieldName         = "name"
	FieldExecForm     = "exec_form"
	FieldDurationMin  = "duration_min"
	FieldDurationMax  = "duration_max"
	FieldDurationUnit = "duration_unit"
	FieldDuration     = "duration"
	FieldRACI         = "raci"
	FieldSubtasks     = "subtasks"
)

// Validation reasons.
const (
	ReasonRequired          = "required"
	ReasonInvalidEnum       = "invalid_enum"
	ReasonMinGreaterThanMax = "min_gt_max"
	ReasonNegative          = "must_be_non_negative"
	ReasonMissingKey        = "missing_key"
	ReasonNotANumber        = "not_a_number"
)

// FieldErrors maps a field key to a reason.
type FieldErrors map[string]string

func (f FieldErrors) Empty() bool { return len(f) == 0 }

// Merge overlays the field errors returned by the server. Server reasons
// win for the same field. The receiver is not modified.
func (f FieldErrors) Merge(server map[string]string) FieldErrors {
	out := make(FieldErrors, len(f)+len(server))
	maps.Copy(out, f)
	maps.Copy(out, server)
	return out
}

// Fields returns the keys in sorted order.
func (f FieldErrors) Fields() []string {
	return slices.Sorted(maps.Keys(f))
}

// Messages describes every error, sorted by field.
func (f FieldErrors) Messages() []string {
	out := make([]string, 0, len(f))
	for _, k := range f.Fields() {
		out = append(out, Describe(k, f[k]))
	}
	return out
}

// Err converts non-empty field errors to a VALIDATION_ERROR carrying them
// under details.fields.
func (f FieldErrors) Err() error {
	if f.Empty() {
		return nil
	}
	return schema.NewError(schema.ErrCodeValidation, strings.Join(f.Messages(), "; ")).
		WithDetails(map[string]any{"fields": map[string]string(f)})
}

// Describe turns a field error into a sentence. Unknown reasons are shown
// as received.
func Describe(field, reason string) string {
	label := FieldLabel(field)
	switch reason {
	case ReasonRequired:
		return label + " is required"
	case ReasonInvalidEnum:
		return label + " has an unsupported value"
	case ReasonMinGreaterThanMax:
		return "Minimum duration cannot exceed maximum duration"
	case ReasonNegative:
		return label + " cannot be negative"
	case ReasonMissingKey:
		return label + " is missing a required key"
	case ReasonNotANumber:
		return label + " must be a number"
	}
	return label + ": " + reason
}

// Validate checks an edit form before it is sent. The min/max comparison
// only runs when both bounds are valid on their own.
func Validate(form NodeForm) FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(form.Name) == "" {
		errs[FieldName] = ReasonRequired
	}

	switch {
	case form.ExecForm == "":
		errs[FieldExecForm] = ReasonRequired
	case !schema.ExecForm(form.ExecForm).Valid():
		errs[FieldExecForm] = ReasonInvalidEnum
	}

	if form.DurationUnit != "" && !schema.DurationUnit(form.DurationUnit).Valid() {
		errs[FieldDurationUnit] = ReasonInvalidEnum
	}

	minV, minOK := checkBound(errs, FieldDurationMin, form.DurationMin)
	maxV, maxOK := checkBound(errs, FieldDurationMax, form.DurationMax)
	if minOK && maxOK && minV != nil && maxV != nil && *minV > *maxV {
		errs[FieldDuration] = ReasonMinGreaterThanMax
	}

	for k := range form.RACI {
		if !k.Valid() {
			errs[FieldRACI] = ReasonInvalidEnum
		}
	}
	return errs
}

// checkBound parses an optional non-negative number. A blank field is valid
// and yields nil.
func checkBound(errs FieldErrors, field, raw string) (*float64, bool) {
	v, err := parseBound(raw)
	if err != nil {
		errs[field] = ReasonNotANumber
		return nil, false
	}
	if v != nil && *v < 0 {
		errs[field] = ReasonNegative
		return nil, false
	}
	return v, true
}

func parseBound(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, strconv.ErrRange
	}
	return &v, nil
}
