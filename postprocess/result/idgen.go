package result

import "sync/atomic"

// IDGenerator hands out incremental IDs, starting at 1, used to identify
// predict requests.  It is safe for concurrent use.
type IDGenerator struct {
	id atomic.Int64
}

// NewIDGenerator returns a generator whose first ID is 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// GetNext returns the next ID
func (g *IDGenerator) GetNext() int64 {
	return g.id.Add(1)
}

// Last returns the most recently issued ID, 0 if none have been issued
func (g *IDGenerator) Last() int64 {
	return g.id.Load()
}
