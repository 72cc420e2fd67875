package store

import "sync"

// sequencer re-establishes the ordering invariant spec §4.4 demands:
// "the on-disk order of records equals the generation order of commits."
//
// Because the mutex is only taken after a commit's CAS already
// succeeded, two committers can install onto master in order A, B but
// arrive ready to append in order B, A. Rather than collapse the whole
// commit (CAS included) under one lock — which spec §4.4 and §9 allow
// but which would make the install itself block on contention — this
// sequencer lets every committer race to the CAS freely and only makes
// them queue for their turn at the log, in strict generation order.
// Since every successful CAS installs a node whose generation is
// exactly one more than the master it replaced, installed generations
// are always contiguous: there is never a generation gap to wait past.
type sequencer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	nextGen uint64 // generation expected to append next
}

func newSequencer(nextGen uint64) *sequencer {
	s := &sequencer{nextGen: nextGen}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// run blocks until it is generation's turn to append, calls fn while
// holding the sequencer (so append and generation-advance are atomic
// with respect to other committers), then releases the next waiter.
func (s *sequencer) run(generation uint64, fn func() error) error {
	s.mu.Lock()
	for s.nextGen != generation {
		s.cond.Wait()
	}

	err := fn()

	s.nextGen++
	s.cond.Broadcast()
	s.mu.Unlock()

	return err
}
