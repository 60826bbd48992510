// Package validation checks diagrams and flows before they are saved or
// submitted for review.
package validation

import "github.com/rendis/flowdesk/pkg/schema"

// Validator checks a raw diagram document: its JSON shape first, then the
// graph rules that JSON Schema cannot express.
type Validator interface {
	Validate(raw string) *schema.ValidationResult
}
