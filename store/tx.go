package store

import (
	"sort"
	"sync/atomic"
)

// txState is a small finite state machine: active → committed | rolledBack.
type txState uint32

const (
	txActive txState = iota
	txCommitted
	txRolledBack
)

type prefixRange struct {
	begin, end string
}

// CommitResult carries the ambient metadata of a successful commit —
// its id and wall-clock time — for logging and diagnostics. Neither
// field participates in conflict detection.
type CommitResult struct {
	Generation  uint64
	ID          [16]byte
	CommittedAt int64 // unix nanoseconds
}

// Transaction holds a snapshot view, a pending write buffer, and a
// read-tracking set. It is single-owner: concurrent use by multiple
// goroutines is undefined, the same contract database/sql's Tx makes.
type Transaction struct {
	db   *Database
	base *node // snapshot at the time of BeginTransaction, or last merge

	writes      map[string]entry
	reads       map[string]struct{}
	prefixReads []prefixRange

	state atomic.Uint32
}

func newTransaction(db *Database, base *node) *Transaction {
	return &Transaction{
		db:     db,
		base:   base,
		writes: make(map[string]entry),
		reads:  make(map[string]struct{}),
		state:  atomic.Uint32{},
	}
}

func (tx *Transaction) checkActive() error {
	if txState(tx.state.Load()) != txActive {
		return ErrTxDone
	}
	return nil
}

// snapshot exposes the transaction's current base as a read-only Snapshot.
func (tx *Transaction) snapshot() Snapshot {
	return Snapshot{tip: tx.base}
}

// Read returns the value visible to this transaction for key: its own
// pending write if any (read-your-own-writes), otherwise the base
// snapshot's value. A point read against the base is recorded in the
// read set so that Commit can detect if it was invalidated.
func (tx *Transaction) Read(key []byte) (val []byte, ok bool, err error) {
	if err = tx.checkActive(); err != nil {
		return nil, false, err
	}

	k := string(key)
	if e, found := tx.writes[k]; found {
		if e.tombstone {
			return nil, false, nil
		}
		return append([]byte(nil), e.val...), true, nil
	}

	tx.reads[k] = struct{}{}
	val, ok = tx.snapshot().Lookup(key)
	return val, ok, nil
}

// Write stores val under key in the transaction's pending write buffer.
// It is not visible to any other transaction until Commit succeeds, and
// it does not affect the read set.
func (tx *Transaction) Write(key, val []byte) error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	tx.writes[string(key)] = entry{val: append([]byte(nil), val...)}
	return nil
}

// Delete records a tombstone for key in the pending write buffer.
func (tx *Transaction) Delete(key []byte) error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	tx.writes[string(key)] = entry{tombstone: true}
	return nil
}

// ScanPrefix records (begin, end) in the prefix-read set, computes the
// base snapshot's matching rows, then overlays the transaction's own
// pending writes: a matching write substitutes its value, a matching
// delete removes the row. Keys introduced by the transaction's own
// writes are not added to the read set — the transaction authored them,
// so no other commit can invalidate what it already knows.
func (tx *Transaction) ScanPrefix(begin, end []byte) ([]KV, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}

	b, e := string(begin), string(end)
	tx.prefixReads = append(tx.prefixReads, prefixRange{begin: b, end: e})

	rows := tx.snapshot().PrefixScan(begin, end)
	overlay := make(map[string]KV, len(rows))
	for _, kv := range rows {
		overlay[string(kv.Key)] = kv
	}

	for k, ent := range tx.writes {
		if !matchesPrefixSuffix(k, b, e) {
			continue
		}
		if ent.tombstone {
			delete(overlay, k)
			continue
		}
		overlay[k] = KV{Key: []byte(k), Val: append([]byte(nil), ent.val...)}
	}

	out := make([]KV, 0, len(overlay))
	for _, kv := range overlay {
		out = append(out, kv)
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].Key) < string(out[j].Key) })
	return out, nil
}

// Commit attempts to install the transaction's writes as a new commit.
// See Database.commit for the CAS-install/merge-and-retry protocol.
func (tx *Transaction) Commit() (CommitResult, error) {
	if !tx.state.CompareAndSwap(uint32(txActive), uint32(txCommitted)) {
		return CommitResult{}, ErrTxDone
	}
	return tx.db.commit(tx)
}

// Rollback discards writes, reads, and prefix-reads. It is O(1): no undo
// log exists because nothing was ever published. Idempotent — calling
// it again, or after Commit, is a no-op.
func (tx *Transaction) Rollback() {
	if tx.state.CompareAndSwap(uint32(txActive), uint32(txRolledBack)) {
		tx.db.active.Add(-1)
	}
}
