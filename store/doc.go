// Package store implements the transactional engine of PATHKVS: an
// in-memory commit chain published through a single atomic master
// pointer, serializable conflict detection on merge-and-retry, and a
// crash-safe append-only durability log.
//
// Concurrency and isolation:
//   - MVCC snapshot isolation with serializable commit validation
//   - lock-free reads and writes; the only blocking point is the
//     durability log's append ordering
//   - full history retained on disk; no compaction
//
// Usage:
//
//	db, err := store.Open("data.pathkvs")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	tx := db.BeginTransaction()
//	tx.Write([]byte("key"), []byte("value"))
//	if _, err := tx.Commit(); err != nil {
//	    // retry on store.ErrConflict
//	}
package store
