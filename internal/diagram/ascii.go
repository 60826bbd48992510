package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// edgeGlyph returns the connector drawn between two step names.
func edgeGlyph(t EdgeType) string {
	switch t {
	case EdgeConditional:
		return "- ->"
	case EdgeParallel:
		return "===>"
	default:
		return "--->"
	}
}

// RenderASCII renders a RenderModel as a text diagram: one row of boxes per
// level followed by the connection list.
func RenderASCII(model *RenderModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}
	if len(model.Nodes) == 0 {
		b.WriteString("(empty diagram)\n")
		return b.String()
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\nConnections:\n")
		for _, edge := range model.Edges {
			from, to := labelOf(model, edge.From), labelOf(model, edge.To)
			if edge.Label != "" {
				b.WriteString(fmt.Sprintf("  %s %s %s  [%s]\n", from, edgeGlyph(edge.Type), to, edge.Label))
			} else {
				b.WriteString(fmt.Sprintf("  %s %s %s\n", from, edgeGlyph(edge.Type), to))
			}
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

func makeBox(node *RenderNode) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if node.Selected {
		contentLines = append(contentLines, "[SELECTED]")
	}
	if node.ExecForm != "" {
		contentLines = append(contentLines, node.ExecForm)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	horizontal, vertical := "─", "│"
	if node.Unrecorded {
		horizontal, vertical = "╌", "╎"
	}

	var lines []string
	lines = append(lines, "┌"+strings.Repeat(horizontal, width-2)+"┐")
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, vertical+" "+padded+" "+vertical)
	}
	lines = append(lines, "└"+strings.Repeat(horizontal, width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

func labelOf(model *RenderModel, id string) string {
	if node := findNode(model.Nodes, id); node != nil {
		return firstLine(node.Label)
	}
	return id
}

func findNode(nodes []*RenderNode, id string) *RenderNode {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
