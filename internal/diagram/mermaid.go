package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders a RenderModel as a Mermaid flowchart string.
func RenderMermaid(model *RenderModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s[%q]\n", mermaidSafeID(node.ID), mermaidEscapeLabel(node.Label)))
	}

	for _, edge := range model.Edges {
		b.WriteString(fmt.Sprintf("    %s %s %s\n",
			mermaidSafeID(edge.From), mermaidArrow(edge), mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	b.WriteString("    classDef selected fill:#dbeafe,stroke:#3b82f6,stroke-width:2px,font-weight:bold\n")
	b.WriteString("    classDef unrecorded fill:#fff,stroke:#d6d3d1,stroke-dasharray:5 3\n")

	for _, node := range model.Nodes {
		if cls := mermaidNodeClass(node); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}

	// linkStyle indexes follow edge declaration order.
	for i, edge := range model.Edges {
		switch edge.Type {
		case EdgeConditional:
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:#d97706\n", i))
		case EdgeParallel:
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:#2563eb\n", i))
		}
	}

	return b.String()
}

// mermaidArrow picks the arrow syntax for an edge type: dotted for
// conditional branches, thick for parallel ones.
func mermaidArrow(edge RenderEdge) string {
	arrow := "-->"
	switch edge.Type {
	case EdgeConditional:
		arrow = "-.->"
	case EdgeParallel:
		arrow = "==>"
	}
	if edge.Label != "" {
		return fmt.Sprintf("%s|%s|", arrow, mermaidEscapeLabel(edge.Label))
	}
	return arrow
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", ":", "_")
	return "n_" + r.Replace(id)
}

// mermaidEscapeLabel strips characters that break Mermaid label parsing.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer("\n", " ", "|", "/", `"`, "'")
	return r.Replace(s)
}

func mermaidNodeClass(node *RenderNode) string {
	switch {
	case node.Selected:
		return "selected"
	case node.Unrecorded:
		return "unrecorded"
	default:
		return ""
	}
}
