package editor

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator mints identifiers for new nodes and edges.
type IDGenerator interface {
	NodeID() string
	EdgeID(source, target string) string
}

// UUIDs is the default generator.
type UUIDs struct{}

func (UUIDs) NodeID() string { return "node-" + uuid.NewString() }

func (UUIDs) EdgeID(source, target string) string {
	return fmt.Sprintf("e-%s-%s-%s", source, target, uuid.NewString()[:8])
}

// Sequence mints predictable ids ("node-1", "e-a-b-2"). Useful for scripted
// sessions and tests.
type Sequence struct {
	n atomic.Int64
}

func (s *Sequence) NodeID() string {
	return "node-" + strconv.FormatInt(s.n.Add(1), 10)
}

func (s *Sequence) EdgeID(source, target string) string {
	return fmt.Sprintf("e-%s-%s-%d", source, target, s.n.Add(1))
}
