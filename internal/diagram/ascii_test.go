package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderASCIILinear(t *testing.T) {
	d, nodes := linearDiagram()
	output := RenderASCII(Build(d, nodes, BuildOptions{Title: "Contract", Selected: "sign"}))

	assert.Contains(t, output, "=== Contract ===")
	assert.Contains(t, output, "┌")
	assert.Contains(t, output, "┘")
	assert.Contains(t, output, "1. Draft")
	assert.Contains(t, output, "DOC_REVIEW")
	assert.Contains(t, output, "[SELECTED]")
	assert.Contains(t, output, "▼")
	assert.Contains(t, output, "1. Draft ---> 2. Review")
	assert.Contains(t, output, "2. Review - -> 3. Sign  [approved]")
}

func TestRenderASCIIEmpty(t *testing.T) {
	output := RenderASCII(Build(Empty(), nil, BuildOptions{}))
	assert.Contains(t, output, "(empty diagram)")
}

func TestRenderASCIIUnrecordedUsesDashedBorder(t *testing.T) {
	output := RenderASCII(Build(Diagram{Nodes: []Node{{ID: "a", Label: "Loose"}}}, nil, BuildOptions{}))
	assert.Contains(t, output, "╌")
	assert.NotContains(t, output, "Connections:")
}

func TestRenderASCIIParallel(t *testing.T) {
	output := RenderASCII(Build(branchingDiagram(), nil, BuildOptions{}))
	assert.Contains(t, output, "A ===> B  [PARALLEL]")
}
