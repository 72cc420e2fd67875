package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"pathkvs/store"
)

func newTestDB(t *testing.T) *store.Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.pathkvs")
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestBasicPutGet checks that a committed write is visible to a
// transaction started afterward.
func TestBasicPutGet(t *testing.T) {
	db := newTestDB(t)

	tx1 := db.BeginTransaction()
	require.NoError(t, tx1.Write([]byte("a"), []byte("1")))
	_, err := tx1.Commit()
	require.NoError(t, err)

	tx2 := db.BeginTransaction()
	val, ok, err := tx2.Read([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(val))
}

// TestIsolationSnapshot checks that a long-running transaction does not
// see commits installed after it began.
func TestIsolationSnapshot(t *testing.T) {
	db := newTestDB(t)

	t1 := db.BeginTransaction()

	t2 := db.BeginTransaction()
	require.NoError(t, t2.Write([]byte("x"), []byte("v")))
	_, err := t2.Commit()
	require.NoError(t, err)

	_, ok, err := t1.Read([]byte("x"))
	require.NoError(t, err)
	require.False(t, ok)

	_, err = t1.Commit() // no writes: always a no-op success
	require.NoError(t, err)
}

// TestWriteWriteNoOverlappingReads checks that two concurrent writers
// touching disjoint keys both commit without conflict.
func TestWriteWriteNoOverlappingReads(t *testing.T) {
	db := newTestDB(t)

	t1 := db.BeginTransaction()
	t2 := db.BeginTransaction()

	require.NoError(t, t1.Write([]byte("a"), []byte("1")))
	require.NoError(t, t2.Write([]byte("b"), []byte("2")))

	_, err := t1.Commit()
	require.NoError(t, err)
	_, err = t2.Commit()
	require.NoError(t, err)

	t3 := db.BeginTransaction()
	va, _, _ := t3.Read([]byte("a"))
	vb, _, _ := t3.Read([]byte("b"))
	require.Equal(t, "1", string(va))
	require.Equal(t, "2", string(vb))
}

// TestReadWriteConflict checks that a transaction whose read was
// invalidated by an intervening commit is rejected with ErrConflict on
// commit, and that a retry against the fresh value succeeds.
func TestReadWriteConflict(t *testing.T) {
	db := newTestDB(t)

	setup := db.BeginTransaction()
	require.NoError(t, setup.Write([]byte("INC"), []byte("0")))
	_, err := setup.Commit()
	require.NoError(t, err)

	t1 := db.BeginTransaction()
	r, ok, err := t1.Read([]byte("INC"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "0", string(r))

	t2 := db.BeginTransaction()
	_, ok, err = t2.Read([]byte("INC"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, t2.Write([]byte("INC"), []byte("1")))
	_, err = t2.Commit()
	require.NoError(t, err)

	require.NoError(t, t1.Write([]byte("INC"), []byte("1"))) // r+1, r==0
	_, err = t1.Commit()
	require.ErrorIs(t, err, store.ErrConflict)

	retry := db.BeginTransaction()
	val, ok, err := retry.Read([]byte("INC"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(val))
	require.NoError(t, retry.Write([]byte("INC"), []byte("2")))
	_, err = retry.Commit()
	require.NoError(t, err)

	final := db.BeginTransaction()
	val, _, _ = final.Read([]byte("INC"))
	require.Equal(t, "2", string(val))
}

// TestPrefixScanConflict checks that a commit inserting a key into a
// previously scanned prefix range invalidates that scan, conflicting
// any later commit from the scanning transaction.
func TestPrefixScanConflict(t *testing.T) {
	db := newTestDB(t)

	setup := db.BeginTransaction()
	require.NoError(t, setup.Write([]byte("user:1"), []byte("a")))
	require.NoError(t, setup.Write([]byte("user:2"), []byte("b")))
	_, err := setup.Commit()
	require.NoError(t, err)

	t1 := db.BeginTransaction()
	rows, err := t1.ScanPrefix([]byte("user:"), nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	t2 := db.BeginTransaction()
	require.NoError(t, t2.Write([]byte("user:3"), []byte("c")))
	_, err = t2.Commit()
	require.NoError(t, err)

	require.NoError(t, t1.Write([]byte("audit"), []byte("x")))
	_, err = t1.Commit()
	require.ErrorIs(t, err, store.ErrConflict)
}

// TestCrashRecovery checks that truncating mid-record on the third
// commit loses only that commit; the first two survive recovery.
func TestCrashRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.pathkvs")

	db, err := store.Open(path)
	require.NoError(t, err)

	commitOne := func(k, v string) {
		tx := db.BeginTransaction()
		require.NoError(t, tx.Write([]byte(k), []byte(v)))
		_, err := tx.Commit()
		require.NoError(t, err)
	}
	commitOne("k1", "v1")
	commitOne("k2", "v2")

	info, err := os.Stat(path)
	require.NoError(t, err)
	sizeBeforeThird := info.Size()

	commitOne("k3", "v3")
	require.NoError(t, db.Close())

	// Simulate a crash mid-write of the third record.
	info, err = os.Stat(path)
	require.NoError(t, err)
	fullSize := info.Size()
	require.Greater(t, fullSize, sizeBeforeThird)
	truncated := sizeBeforeThird + (fullSize-sizeBeforeThird)/2
	require.NoError(t, os.Truncate(path, truncated))

	db2, err := store.Open(path)
	require.NoError(t, err)
	defer db2.Close()

	tx := db2.BeginTransaction()
	_, ok, _ := tx.Read([]byte("k1"))
	require.True(t, ok)
	_, ok, _ = tx.Read([]byte("k2"))
	require.True(t, ok)
	_, ok, _ = tx.Read([]byte("k3"))
	require.False(t, ok)
}

// TestReadYourOwnWrites checks write-read consistency within a
// transaction, including after Delete.
func TestReadYourOwnWrites(t *testing.T) {
	db := newTestDB(t)

	tx := db.BeginTransaction()
	require.NoError(t, tx.Write([]byte("x"), []byte("42")))
	val, ok, err := tx.Read([]byte("x"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", string(val))

	require.NoError(t, tx.Delete([]byte("x")))
	_, ok, err = tx.Read([]byte("x"))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestEmptyValueDistinctFromAbsence checks that an empty value is legal
// and distinct from absence.
func TestEmptyValueDistinctFromAbsence(t *testing.T) {
	db := newTestDB(t)

	tx := db.BeginTransaction()
	require.NoError(t, tx.Write([]byte("empty"), []byte{}))
	_, err := tx.Commit()
	require.NoError(t, err)

	r := db.BeginTransaction()
	val, ok, err := r.Read([]byte("empty"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, len(val))

	_, ok, err = r.Read([]byte("never-written"))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestRollbackIdempotent: Rollback then Rollback is equivalent to one
// Rollback; Commit after Rollback fails with ErrTxDone.
func TestRollbackIdempotent(t *testing.T) {
	db := newTestDB(t)

	tx := db.BeginTransaction()
	require.NoError(t, tx.Write([]byte("a"), []byte("1")))
	tx.Rollback()
	tx.Rollback()

	_, err := tx.Commit()
	require.True(t, errors.Is(err, store.ErrTxDone))

	check := db.BeginTransaction()
	_, ok, _ := check.Read([]byte("a"))
	require.False(t, ok)
}

// TestEmptyCommitIsNoOp: committing a read-only transaction never
// touches the log and always succeeds.
func TestEmptyCommitIsNoOp(t *testing.T) {
	db := newTestDB(t)
	before := db.Stats().Generation

	tx := db.BeginTransaction()
	_, _, _ = tx.Read([]byte("anything"))
	_, err := tx.Commit()
	require.NoError(t, err)

	require.Equal(t, before, db.Stats().Generation)
}

// TestChainMonotonicity is spec invariant 6.
func TestChainMonotonicity(t *testing.T) {
	db := newTestDB(t)
	last := db.Stats().Generation

	for i := 0; i < 20; i++ {
		tx := db.BeginTransaction()
		require.NoError(t, tx.Write([]byte("k"), []byte("v")))
		res, err := tx.Commit()
		require.NoError(t, err)
		require.GreaterOrEqual(t, res.Generation, last)
		last = res.Generation
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	db := newTestDB(t)

	for i, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		tx := db.BeginTransaction()
		require.NoError(t, tx.Write([]byte(kv[0]), []byte(kv[1])))
		_, err := tx.Commit()
		require.NoErrorf(t, err, "commit %d", i)
	}
	del := db.BeginTransaction()
	require.NoError(t, del.Delete([]byte("b")))
	_, err := del.Commit()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snapshot.ckpt")
	require.NoError(t, db.CheckpointToFile(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gen, rows, err := store.LoadCheckpoint(f)
	require.NoError(t, err)
	require.Equal(t, db.Stats().Generation, gen)

	want := []store.KV{
		{Key: []byte("a"), Val: []byte("1")},
		{Key: []byte("c"), Val: []byte("3")},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("checkpoint rows mismatch (-want +got):\n%s", diff)
	}
}
