package testfixtures

import (
	"fmt"
	"sync"
)

// RunIDSequence hands out predictable migration run ids: run-001, run-002, ...
type RunIDSequence struct {
	mu   sync.Mutex
	next uint64
}

// NewRunIDSequence returns a sequence starting at run-001.
func NewRunIDSequence() *RunIDSequence {
	return &RunIDSequence{}
}

// Next returns the following run id.
func (s *RunIDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("run-%03d", s.next)
}

// NextFunc exposes Next for injection into the migration manager.
func (s *RunIDSequence) NextFunc() func() string {
	return s.Next
}
