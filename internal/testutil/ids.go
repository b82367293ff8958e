package testutil

import (
	"fmt"
	"sync"
)

// IDs is a kernel.IDGenerator producing "<prefix>-0001", "<prefix>-0002"
// and so on. Unlike kernel.SequenceGenerator it can be reset.
type IDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewIDs creates a generator. An empty prefix means "commit".
func NewIDs(prefix string) *IDs {
	if prefix == "" {
		prefix = "commit"
	}
	return &IDs{prefix: prefix}
}

// Generate returns the next ID.
func (g *IDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *IDs) Reset() {
	g.mu.Lock()
	g.n = 0
	g.mu.Unlock()
}
