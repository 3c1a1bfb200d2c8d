package macros

import (
	"sync"

	"github.com/sambeau/roll/pkg/roll/roll"
)

// Set is a macro table shared between goroutines. The watcher replaces it
// while interpretations read snapshots of it.
type Set struct {
	mu     sync.RWMutex
	macros roll.Macros
}

// NewSet returns a set holding a copy of macros
func NewSet(macros roll.Macros) *Set {
	return &Set{macros: macros.Clone()}
}

// Snapshot returns a copy that is safe to use for one interpretation
func (s *Set) Snapshot() roll.Macros {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.macros.Clone()
}

// Replace swaps in a new table
func (s *Set) Replace(macros roll.Macros) {
	macros = macros.Clone()
	s.mu.Lock()
	s.macros = macros
	s.mu.Unlock()
}

// Names returns the macro names in sorted order
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.macros.Names()
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.macros)
}

// Merge returns a new table with the layers applied in order; later layers
// win.
func Merge(layers ...roll.Macros) roll.Macros {
	merged := roll.Macros{}
	for _, layer := range layers {
		for name, body := range layer {
			merged[name] = body
		}
	}
	return merged
}
