package store

import (
	"errors"
	"io"
	"os"
	"sync"
)

// commitLog is the append-only durability file. Every write goes
// through append, which is always called with the sequencer held so
// that records land on disk in generation order (see sequencer in
// sequencer.go). commitLog itself only needs to serialize the actual
// I/O against a concurrent close; the single mutex
// here is not the ordering mechanism — the sequencer is.
type commitLog struct {
	mu     sync.Mutex
	file   *os.File
	offset int64
}

func openCommitLog(path string) (*commitLog, *node, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, nil, ioError("open", err)
	}

	tip, offset, err := recover_(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	if err := f.Truncate(offset); err != nil {
		_ = f.Close()
		return nil, nil, ioError("truncate", err)
	}

	return &commitLog{file: f, offset: offset}, tip, nil
}

// recover_ reads records sequentially from offset 0, chaining each onto
// the previously read node (genesis first). A trailing partial or
// corrupt record stops recovery at the offset of the last complete
// record; that offset is returned so the caller can truncate the file
// there (spec §4.4 "Startup recovery").
func recover_(f *os.File) (*node, int64, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, ioError("seek", err)
	}

	tip := genesis()
	var offset int64

	r := io.Reader(f)
	for {
		dr, n, err := readRecord(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, errTruncated) {
				break // RecoveryTruncation: stop, keep what we have.
			}
			return nil, 0, ioError("recover", err)
		}

		tip = &node{
			id:          dr.id,
			committedAt: dr.committedAt,
			writes:      dr.writes,
			prior:       tip,
			generation:  tip.generation + 1,
		}
		offset += n
	}

	return tip, offset, nil
}

// append writes one record at the log's current end and fsyncs before
// returning. Ordering across concurrent committers is the caller's
// responsibility (the sequencer); append itself only guards the file
// handle and offset bookkeeping.
func (l *commitLog) append(n *node) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := encodeRecord(n)

	if _, err := l.file.WriteAt(buf, l.offset); err != nil {
		return 0, ioError("write", err)
	}
	if err := l.file.Sync(); err != nil {
		return 0, ioError("fsync", err)
	}

	l.offset += int64(len(buf))
	return len(buf), nil
}

func (l *commitLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
