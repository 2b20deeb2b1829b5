package segment

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator hands out "<scope>-seg-<n>" identifiers.
type IDGenerator struct {
	counter uint64
}

// NewIDGenerator returns a generator starting at 1.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next identifier for scope. Safe for concurrent use.
func (g *IDGenerator) Next(scope string) string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-seg-%d", scope, n)
}
