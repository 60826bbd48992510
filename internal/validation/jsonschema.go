package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rendis/flowdesk/internal/diagram"
	"github.com/rendis/flowdesk/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const diagramSchemaURL = "https://flowdesk.dev/schemas/diagram.json"

// diagramSchemaJSON describes the diagram_json document stored on a flow.
// Edge types are not enumerated: unknown types are kept and rendered with
// the neutral style.
const diagramSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdesk.dev/schemas/diagram.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    }
  },
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "label", "x", "y"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "x": { "type": "number" },
        "y": { "type": "number" }
      }
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "type": { "type": "string", "minLength": 1 },
        "label": { "type": "string" }
      }
    }
  }
}`

// DiagramValidator validates diagram documents with JSON Schema Draft
// 2020-12 plus CheckStructure. It is safe for concurrent use.
type DiagramValidator struct {
	schema *jsonschema.Schema
}

var _ Validator = (*DiagramValidator)(nil)

// NewDiagramValidator compiles the embedded diagram schema.
func NewDiagramValidator() (*DiagramValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(diagramSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal diagram schema: %w", err)
	}
	if err := c.AddResource(diagramSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add diagram schema resource: %w", err)
	}
	compiled, err := c.Compile(diagramSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile diagram schema: %w", err)
	}
	return &DiagramValidator{schema: compiled}, nil
}

// Validate checks raw diagram JSON. Shape violations are reported as SCHEMA
// errors and stop the check; a well-shaped document then goes through
// CheckStructure. An empty string is the empty diagram and is valid.
func (v *DiagramValidator) Validate(raw string) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if strings.TrimSpace(raw) == "" {
		return result
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		result.AddError("/", schema.IssueSchema, "diagram is not valid JSON: "+err.Error())
		return result
	}
	if err := v.schema.Validate(doc); err != nil {
		for _, violation := range violations(err) {
			result.AddError(violation.path, schema.IssueSchema, violation.message)
		}
		return result
	}

	d, err := diagram.ParseStrict(raw)
	if err != nil {
		result.AddError("/", schema.IssueSchema, err.Error())
		return result
	}
	result.Merge(CheckStructure(d))
	return result
}

type violation struct {
	path    string
	message string
}

// violations walks a ValidationError tree and collects its leaves with
// their instance locations.
func violations(err error) []violation {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []violation{{path: "/", message: err.Error()}}
	}
	return collect(verr)
}

func collect(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []violation{{path: loc, message: verr.Error()}}
	}
	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collect(cause)...)
	}
	return out
}
