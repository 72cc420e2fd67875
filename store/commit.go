package store

import (
	"time"

	"github.com/google/uuid"
)

// entry is one key's contribution to a commit node's write-map. tombstone
// distinguishes "delete" from "write empty value" — a zero-length val is
// a legal, distinct value.
type entry struct {
	val       []byte
	tombstone bool
}

// node is an immutable commit record: the writes introduced by one
// successful transaction, plus a back-reference to the prior commit.
// Collectively the chain reachable from the database's master pointer
// IS the database — node never mutates after construction, which is
// what makes lock-free reads of the chain safe.
//
// A node stores only the keys IT wrote, not a full snapshot: resolving
// a key requires walking toward genesis until some node's writes map
// contains it. This is why the full chain, not just the tip, must stay
// resident in memory (spec: "the entire database must fit in memory").
type node struct {
	id          uuid.UUID
	committedAt time.Time
	writes      map[string]entry
	prior       *node
	generation  uint64
}

// genesis is the null-prior, generation-0 root of every chain.
func genesis() *node {
	return &node{generation: 0}
}

// lookup walks from n toward genesis and returns the first (i.e. most
// recent) write to key. ok is false if no commit in the chain touched
// key, or if the most recent touch was a delete.
func (n *node) lookup(key string) (val []byte, ok bool) {
	for cur := n; cur != nil; cur = cur.prior {
		if e, found := cur.writes[key]; found {
			if e.tombstone {
				return nil, false
			}
			return e.val, true
		}
	}
	return nil, false
}

// matchesPrefixSuffix reports whether key starts with begin and ends with end. Both
// may be empty, matching everything — spec's prefix/suffix filter, not a
// lexicographic range.
func matchesPrefixSuffix(key, begin, end string) bool {
	if len(key) < len(begin) || key[:len(begin)] != begin {
		return false
	}
	if len(key) < len(end) || key[len(key)-len(end):] != end {
		return false
	}
	return true
}
