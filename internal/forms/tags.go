package forms

import (
	"slices"
	"strings"
)

// Commit adds a trimmed draft to a tag list. Empty drafts and values
// already present are rejected. The input slice is never modified.
func Commit(values []string, draft string) ([]string, bool) {
	v := strings.TrimSpace(draft)
	if v == "" || slices.Contains(values, v) {
		return values, false
	}
	return append(slices.Clone(values), v), true
}

// CommitList adds a trimmed draft to an ordered list that allows repeats.
func CommitList(values []string, draft string) ([]string, bool) {
	v := strings.TrimSpace(draft)
	if v == "" {
		return values, false
	}
	return append(slices.Clone(values), v), true
}

// Remove drops the entry at index. An index out of range changes nothing.
func Remove(values []string, index int) []string {
	if index < 0 || index >= len(values) {
		return values
	}
	return slices.Delete(slices.Clone(values), index, index+1)
}

// TagInput is a list with a pending text draft.
//
// RACI inputs commit on Enter and on blur, reject duplicates and always
// clear the draft. Subtask inputs commit on Enter only, keep duplicates
// and keep a rejected (blank) draft.
type TagInput struct {
	Values []string
	Draft  string

	unique       bool
	commitOnBlur bool
}

// NewRACIInput returns an input for one responsibility column.
func NewRACIInput(values []string) *TagInput {
	return &TagInput{Values: slices.Clone(values), unique: true, commitOnBlur: true}
}

// NewSubtaskInput returns an input for the subtask list.
func NewSubtaskInput(values []string) *TagInput {
	return &TagInput{Values: slices.Clone(values)}
}

// Enter commits the draft. It reports whether Values changed.
func (t *TagInput) Enter() bool {
	return t.commit()
}

// Blur commits the draft for inputs that commit on blur.
func (t *TagInput) Blur() bool {
	if !t.commitOnBlur {
		return false
	}
	return t.commit()
}

func (t *TagInput) Remove(index int) {
	t.Values = Remove(t.Values, index)
}

func (t *TagInput) commit() bool {
	var ok bool
	if t.unique {
		t.Values, ok = Commit(t.Values, t.Draft)
		t.Draft = ""
		return ok
	}
	t.Values, ok = CommitList(t.Values, t.Draft)
	if ok {
		t.Draft = ""
	}
	return ok
}
