package store

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRecordRoundTrip(t *testing.T) {
	n := &node{
		id:          uuid.New(),
		committedAt: time.Unix(1700000000, 123).UTC(),
		writes: map[string]entry{
			"alpha": {val: []byte("1")},
			"beta":  {tombstone: true},
			"gamma": {val: []byte{}},
		},
	}

	buf := encodeRecord(n)

	dr, consumed, err := readRecord(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("readRecord: %v", err)
	}
	if consumed != int64(len(buf)) {
		t.Fatalf("consumed %d, want %d", consumed, len(buf))
	}
	if dr.id != n.id {
		t.Fatalf("id mismatch: got %v want %v", dr.id, n.id)
	}
	if !dr.committedAt.Equal(n.committedAt) {
		t.Fatalf("committedAt mismatch: got %v want %v", dr.committedAt, n.committedAt)
	}
	if len(dr.writes) != len(n.writes) {
		t.Fatalf("write count mismatch: got %d want %d", len(dr.writes), len(n.writes))
	}
	for k, want := range n.writes {
		got, ok := dr.writes[k]
		if !ok {
			t.Fatalf("missing key %q after decode", k)
		}
		if got.tombstone != want.tombstone {
			t.Fatalf("key %q tombstone mismatch", k)
		}
		if !bytes.Equal(got.val, want.val) {
			t.Fatalf("key %q value mismatch: got %q want %q", k, got.val, want.val)
		}
	}
}

func TestReadRecordDetectsTruncation(t *testing.T) {
	n := &node{id: uuid.New(), committedAt: time.Now(), writes: map[string]entry{"k": {val: []byte("v")}}}
	buf := encodeRecord(n)

	for cut := 1; cut < len(buf); cut++ {
		_, _, err := readRecord(bytes.NewReader(buf[:cut]))
		if err == nil {
			t.Fatalf("cut=%d: expected truncation error, got nil", cut)
		}
	}
}

func TestReadRecordDetectsCorruption(t *testing.T) {
	n := &node{id: uuid.New(), committedAt: time.Now(), writes: map[string]entry{"k": {val: []byte("v")}}}
	buf := encodeRecord(n)

	corrupt := append([]byte(nil), buf...)
	corrupt[len(corrupt)-1] ^= 0xFF // invert the crc's last byte

	_, _, err := readRecord(bytes.NewReader(corrupt))
	if err == nil {
		t.Fatal("expected crc mismatch to be reported as truncation")
	}
}

func TestReadRecordEOFAtBoundary(t *testing.T) {
	_, _, err := readRecord(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("expected io.EOF on empty reader, got %v", err)
	}
}
