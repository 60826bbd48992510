package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/flowdesk/internal/expressions"
)

// outputFlags select how a command prints structured results.
type outputFlags struct {
	format string
	jq     string
}

func (o *outputFlags) register(cmd *cobra.Command, def string, formats ...string) {
	cmd.Flags().StringVarP(&o.format, "format", "o", def, fmt.Sprintf("Output format: %v", formats))
	cmd.Flags().StringVar(&o.jq, "jq", "", "jq expression applied to the JSON result")
}

// structured reports whether the result goes out as JSON or YAML rather than
// a human table.
func (o *outputFlags) structured() bool {
	return o.format == "json" || o.format == "yaml" || o.jq != ""
}

// write encodes v as JSON or YAML after the optional jq projection. YAML
// keys follow the JSON field names.
func (o *outputFlags) write(ctx context.Context, w io.Writer, v any) error {
	generic, err := toGeneric(v)
	if err != nil {
		return err
	}
	if o.jq != "" {
		generic, err = expressions.Project(ctx, o.jq, generic)
		if err != nil {
			return err
		}
	}
	switch o.format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(generic)
	}
}

func toGeneric(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}

func validFormat(format string, allowed ...string) error {
	if slices.Contains(allowed, format) {
		return nil
	}
	return fmt.Errorf("unknown format %q, want one of %v", format, allowed)
}
