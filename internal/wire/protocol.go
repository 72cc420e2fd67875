// Package wire implements the line-oriented TCP connector: one
// connection per transaction session, translating the command grammar
// into calls against a store.Transaction. It is an external
// collaborator to the core engine, never the other way around — store
// has no notion of sockets, lines, or commands.
package wire

import (
	"bytes"
	"errors"
	"strings"
)

// ErrMalformed is returned by Parse when a line matches none of the
// grammar forms below.
var ErrMalformed = errors.New("wire: malformed request")

// Kind identifies which of the grammar's command forms a Command is.
type Kind int

const (
	KindWrite Kind = iota
	KindRead
	KindDelete
	KindScanKeys
	KindScanWithValues
	KindCommit
	KindRollback
	KindStats
)

// Command is one parsed line of client input.
type Command struct {
	Kind  Kind
	Key   []byte
	Val   []byte
	Begin []byte
	End   []byte
}

// Parse interprets one line (already stripped of its trailing newline)
// according to this grammar:
//
//	KEY=VALUE   write
//	KEY!        delete (distinct from writing an empty value)
//	KEY         read
//	BEGIN*END   prefix+suffix scan, keys only
//	BEGIN*END=  prefix+suffix scan, keys and values
//	commit      attempt commit
//	rollback    discard pending writes/reads
//	stats       diagnostic
//
// Keys and values containing '=', '*', '!', or a newline are rejected
// as malformed — this line-oriented grammar defines no escaping for
// them. The core Transaction API itself has no such restriction; the
// limitation is entirely this connector's.
func Parse(line string) (Command, error) {
	switch line {
	case "commit":
		return Command{Kind: KindCommit}, nil
	case "rollback":
		return Command{Kind: KindRollback}, nil
	case "stats":
		return Command{Kind: KindStats}, nil
	}

	if strings.Contains(line, "\n") {
		return Command{}, ErrMalformed
	}

	if idx := strings.IndexByte(line, '*'); idx >= 0 {
		begin := line[:idx]
		rest := line[idx+1:]
		if strings.ContainsAny(begin, "=*!") {
			return Command{}, ErrMalformed
		}
		withValues := strings.HasSuffix(rest, "=")
		end := rest
		if withValues {
			end = rest[:len(rest)-1]
		}
		if strings.ContainsAny(end, "=*!") {
			return Command{}, ErrMalformed
		}
		kind := KindScanKeys
		if withValues {
			kind = KindScanWithValues
		}
		return Command{Kind: kind, Begin: []byte(begin), End: []byte(end)}, nil
	}

	if strings.HasSuffix(line, "!") {
		key := line[:len(line)-1]
		if key == "" || strings.ContainsAny(key, "=!") {
			return Command{}, ErrMalformed
		}
		return Command{Kind: KindDelete, Key: []byte(key)}, nil
	}

	if idx := strings.IndexByte(line, '='); idx >= 0 {
		key := line[:idx]
		val := line[idx+1:]
		if key == "" || strings.ContainsAny(key, "=!") || strings.ContainsAny(val, "=*!") {
			return Command{}, ErrMalformed
		}
		return Command{Kind: KindWrite, Key: []byte(key), Val: []byte(val)}, nil
	}

	if line == "" || strings.Contains(line, "!") {
		return Command{}, ErrMalformed
	}
	return Command{Kind: KindRead, Key: []byte(line)}, nil
}

// scanTerminator marks the end of a multi-line scan response.
const scanTerminator = "."

// FormatScanRow renders one scan result row for the wire. withValues
// controls whether the value is included (BEGIN*END vs BEGIN*END=).
func FormatScanRow(key, val []byte, withValues bool) string {
	if !withValues {
		return escapeLine(key)
	}
	var b bytes.Buffer
	b.WriteString(escapeLine(key))
	b.WriteByte('=')
	b.Write(val)
	return b.String()
}

// escapeLine is a no-op placeholder for a key that, by construction of
// Parse's grammar, can never itself contain '=', '*', or '!' on the way
// in — kept as a named seam so a future escaping scheme has one place
// to land.
func escapeLine(key []byte) string {
	return string(key)
}
