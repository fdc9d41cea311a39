package transcript

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator hands out line ids unique within a session.
type IDGenerator struct {
	prefix  string
	counter uint64
}

// NewIDGenerator returns a generator whose ids start with prefix.
func NewIDGenerator(prefix string) *IDGenerator {
	return &IDGenerator{prefix: prefix}
}

// Next returns the next id.
func (g *IDGenerator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-line-%d", g.prefix, n)
}
