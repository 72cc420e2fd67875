package store

import (
	"time"

	"github.com/google/uuid"
)

// Metrics receives ambient observability events from the commit engine.
// It has no effect on correctness; a nil Metrics is always safe. The
// concrete implementation (backed by Prometheus) lives outside this
// package — store stays free of any particular metrics backend.
type Metrics interface {
	ObserveCommit(ok bool)
	ObserveCASRetry()
	ObserveLogBytes(n int)
}

// commit runs the install protocol described in spec §4.3: a fast path
// that installs via CAS when there's no contention, and merge-and-retry
// validation against intervening commits when there is.
func (db *Database) commit(tx *Transaction) (CommitResult, error) {
	defer func() {
		db.active.Add(-1)
	}()

	if len(tx.writes) == 0 {
		// Read-only transactions never conflict and never touch the log.
		db.observeCommit(true)
		return CommitResult{Generation: tx.base.generation}, nil
	}

	c := &node{
		id:          uuid.New(),
		writes:      tx.writes,
		prior:       tx.base,
		generation:  tx.base.generation + 1,
	}

	for {
		if db.master.CompareAndSwap(tx.base, c) {
			break
		}

		db.observeCASRetry()

		newTip := db.master.Load()
		if err := validateReadSet(tx, newTip); err != nil {
			db.observeCommit(false)
			return CommitResult{}, err
		}

		tx.base = newTip
		c.prior = newTip
		c.generation = newTip.generation + 1
	}

	c.committedAt = time.Now()

	if err := db.appendInOrder(c); err != nil {
		return CommitResult{}, err
	}

	db.observeCommit(true)
	return CommitResult{
		Generation:  c.generation,
		ID:          c.id,
		CommittedAt: c.committedAt.UnixNano(),
	}, nil
}

// validateReadSet walks the commits strictly after tx.base up to and
// including newTip (i.e. the range (base, newTip], walked tip→base
// until a node whose prior is base is reached) and checks whether any
// of them touched a key the transaction read, by point read or by a
// matching prefix scan. A hit means the transaction's view of that key
// is stale — it must abort with ErrConflict, since a serializable
// history requires this commit to be ordered after the one it is
// conflicting with, which it already read around.
func validateReadSet(tx *Transaction, newTip *node) error {
	for m := newTip; m != nil && m != tx.base; m = m.prior {
		for key := range m.writes {
			if _, read := tx.reads[key]; read {
				return ErrConflict
			}
			for _, pr := range tx.prefixReads {
				if matchesPrefixSuffix(key, pr.begin, pr.end) {
					return ErrConflict
				}
			}
		}
	}
	return nil
}

func (db *Database) observeCommit(ok bool) {
	if db.metrics != nil {
		db.metrics.ObserveCommit(ok)
	}
}

func (db *Database) observeCASRetry() {
	if db.metrics != nil {
		db.metrics.ObserveCASRetry()
	}
}
