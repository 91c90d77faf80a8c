package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.FixedGenerator it never runs out, so scenarios can start
// any number of activities and still produce byte-identical traces.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator. An empty prefix defaults to "act".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "act"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate implements engine.ActivityIDGenerator.
func (g *SequentialIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
