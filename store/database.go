package store

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"sync/atomic"

	fileatomic "github.com/natefinch/atomic"
)

// Option configures a Database at Open time.
type Option func(*Database)

// WithLogger installs a structured logger for recovery and durability
// events. The default writes warnings and errors to stderr as text.
func WithLogger(l *slog.Logger) Option {
	return func(db *Database) { db.logger = l }
}

// WithMetrics installs a Metrics sink for commit/retry/log observability.
func WithMetrics(m Metrics) Option {
	return func(db *Database) { db.metrics = m }
}

// Database owns the atomic master pointer, the durability log, and the
// append-ordering sequencer; it hands out transactions.
type Database struct {
	master atomic.Pointer[node]
	log    *commitLog
	seq    *sequencer

	active  atomic.Int64 // live transaction count, for Stats
	ioDown  atomic.Bool  // set once a durability write has failed
	closed  atomic.Bool
	logger  *slog.Logger
	metrics Metrics
}

// Open opens or creates the database file at path, recovering the
// commit chain from it. If the file is absent or empty, master is
// initialized to the genesis commit.
func Open(path string, opts ...Option) (*Database, error) {
	log, tip, err := openCommitLog(path)
	if err != nil {
		return nil, err
	}

	db := &Database{
		log:    log,
		seq:    newSequencer(tip.generation + 1),
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	db.master.Store(tip)

	for _, o := range opts {
		o(db)
	}

	db.logger.Debug("database opened", "path", path, "generation", tip.generation)
	return db, nil
}

// Close closes the underlying log file. It does not discard any
// in-memory state; outstanding transactions remain valid readers but
// can no longer commit.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	return db.log.close()
}

// BeginTransaction reads master atomically and constructs a Transaction
// against that snapshot.
func (db *Database) BeginTransaction() *Transaction {
	db.active.Add(1)
	base := db.master.Load()
	return newTransaction(db, base)
}

// appendInOrder waits its turn (by generation) and then durably appends
// c to the log. A failure here poisons the database for future commits:
// an IOError must reach the caller before any ok is returned, and the
// process should treat the database as unsafe to continue writing to —
// so once poisoned, later commits fail fast rather than silently
// growing a log with a missing generation.
func (db *Database) appendInOrder(c *node) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if db.ioDown.Load() {
		return ioError("append", errDatabaseUnsafe)
	}

	var written int
	err := db.seq.run(c.generation, func() error {
		n, err := db.log.append(c)
		written = n
		return err
	})
	if err != nil {
		db.ioDown.Store(true)
		db.logger.Error("durability write failed, database is now unsafe to write to", "generation", c.generation, "error", err)
		return err
	}

	if db.metrics != nil {
		db.metrics.ObserveLogBytes(written)
	}
	return nil
}

var errDatabaseUnsafe = errUnsafe{}

type errUnsafe struct{}

func (errUnsafe) Error() string {
	return "a prior durability write failed; refusing further writes"
}

// DatabaseStats is a diagnostic snapshot of the database's current state.
type DatabaseStats struct {
	Generation         uint64
	ActiveTransactions int64
}

func (db *Database) Stats() DatabaseStats {
	return DatabaseStats{
		Generation:         db.master.Load().generation,
		ActiveTransactions: db.active.Load(),
	}
}

// Checkpoint writes a point-in-time, sorted dump of the current
// snapshot's visible keys and values to w, using the same length-framed
// per-entry layout as the durability log (without tombstones — a
// checkpoint has nothing to delete). It does not block writers: it
// walks an immutable snapshot captured when Checkpoint is called.
func (db *Database) Checkpoint(w io.Writer) error {
	snap := Snapshot{tip: db.master.Load()}
	rows := snap.PrefixScan(nil, nil)
	sort.Slice(rows, func(i, j int) bool { return string(rows[i].Key) < string(rows[j].Key) })
	return encodeCheckpoint(w, snap.Generation(), rows)
}

// CheckpointToFile writes a Checkpoint to path via a temp-file-plus-
// rename sequence (github.com/natefinch/atomic), so a crash mid-export
// never leaves a half-written file visible under its final name.
func (db *Database) CheckpointToFile(path string) error {
	buf, err := checkpointBytes(db)
	if err != nil {
		return err
	}
	return ioError("checkpoint", fileatomic.WriteFile(path, byteReader(buf)))
}
