package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// checkpointMagic identifies a PATHKVS checkpoint file. Checkpoints are
// a supplementary, point-in-time export — not part of the durability
// log and never consulted during recovery.
var checkpointMagic = [4]byte{'P', 'K', 'C', 'P'}

// ErrBadCheckpoint is returned when a checkpoint file's header does not
// match checkpointMagic, or its framing runs past EOF.
var ErrBadCheckpoint = errors.New("pathkvs: not a pathkvs checkpoint file")

// encodeCheckpoint writes generation and rows (assumed already sorted)
// to w as: [4B magic][u64 LE generation][u32 LE entry_count] followed
// by entry_count repetitions of [u32 LE key_len][key][u32 LE val_len][val].
// There is no tombstone flag — a checkpoint has no deletes to represent.
func encodeCheckpoint(w io.Writer, generation uint64, rows []KV) error {
	var header [4 + 8 + 4]byte
	copy(header[0:4], checkpointMagic[:])
	binary.LittleEndian.PutUint64(header[4:12], generation)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(rows)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	var lenBuf [4]byte
	for _, kv := range rows {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(kv.Key)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(kv.Key); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(kv.Val)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.Write(kv.Val); err != nil {
			return err
		}
	}
	return nil
}

// LoadCheckpoint reads back a checkpoint written by encodeCheckpoint
// (via Database.Checkpoint / CheckpointToFile).
func LoadCheckpoint(r io.Reader) (generation uint64, rows []KV, err error) {
	var header [4 + 8 + 4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, ErrBadCheckpoint
	}
	if !bytes.Equal(header[0:4], checkpointMagic[:]) {
		return 0, nil, ErrBadCheckpoint
	}
	generation = binary.LittleEndian.Uint64(header[4:12])
	count := binary.LittleEndian.Uint32(header[12:16])

	rows = make([]KV, 0, count)
	var lenBuf [4]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return 0, nil, ErrBadCheckpoint
		}
		klen := binary.LittleEndian.Uint32(lenBuf[:])
		key := make([]byte, klen)
		if _, err := io.ReadFull(r, key); err != nil {
			return 0, nil, ErrBadCheckpoint
		}

		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return 0, nil, ErrBadCheckpoint
		}
		vlen := binary.LittleEndian.Uint32(lenBuf[:])
		val := make([]byte, vlen)
		if _, err := io.ReadFull(r, val); err != nil {
			return 0, nil, ErrBadCheckpoint
		}

		rows = append(rows, KV{Key: key, Val: val})
	}
	return generation, rows, nil
}

// checkpointBytes renders db's current Checkpoint into memory, for
// CheckpointToFile's atomic write.
func checkpointBytes(db *Database) ([]byte, error) {
	var buf bytes.Buffer
	if err := db.Checkpoint(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func byteReader(buf []byte) io.Reader {
	return bytes.NewReader(buf)
}
