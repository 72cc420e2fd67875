package store

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
)

// On-disk record framing:
//
//	[u32 LE record_len]
//	[u64 LE committed_at_unix_nano]
//	[16B commit id]
//	[u32 LE write_count]
//	repeated write_count times:
//	  [u32 LE key_len][key_len bytes key]
//	  [u8 tombstone_flag]
//	  if tombstone_flag == 0: [u32 LE val_len][val_len bytes val]
//	[u32 LE crc32 over everything from committed_at_unix_nano to the end of the write list]
//
// record_len counts every byte between itself and the trailing crc32.
const (
	recordLenSize   = 4
	timestampSize   = 8
	idSize          = 16
	writeCountSize  = 4
	crcSize         = 4
	recordFixedSize = timestampSize + idSize + writeCountSize
)

// encodeRecord serializes n's writes (not its generation — generation is
// implicit in the record's position in the file) into the framing above.
// Keys are written in sorted order so encoding is deterministic, which
// makes round-trip tests reproducible; recovery does not depend on this
// order.
func encodeRecord(n *node) []byte {
	keys := make([]string, 0, len(n.writes))
	for k := range n.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := new(bytes.Buffer)

	var ts [timestampSize]byte
	binary.LittleEndian.PutUint64(ts[:], uint64(n.committedAt.UnixNano()))
	payload.Write(ts[:])

	id := n.id
	payload.Write(id[:])

	var wc [writeCountSize]byte
	binary.LittleEndian.PutUint32(wc[:], uint32(len(keys)))
	payload.Write(wc[:])

	for _, k := range keys {
		e := n.writes[k]

		var kl [4]byte
		binary.LittleEndian.PutUint32(kl[:], uint32(len(k)))
		payload.Write(kl[:])
		payload.WriteString(k)

		if e.tombstone {
			payload.WriteByte(1)
			continue
		}
		payload.WriteByte(0)

		var vl [4]byte
		binary.LittleEndian.PutUint32(vl[:], uint32(len(e.val)))
		payload.Write(vl[:])
		payload.Write(e.val)
	}

	crc := crc32.ChecksumIEEE(payload.Bytes())

	out := new(bytes.Buffer)
	out.Grow(recordLenSize + payload.Len() + crcSize)

	var rl [recordLenSize]byte
	binary.LittleEndian.PutUint32(rl[:], uint32(payload.Len()))
	out.Write(rl[:])
	out.Write(payload.Bytes())

	var crcBuf [crcSize]byte
	binary.LittleEndian.PutUint32(crcBuf[:], crc)
	out.Write(crcBuf[:])

	return out.Bytes()
}

// decodedRecord is one parsed record, not yet linked into a chain.
type decodedRecord struct {
	id          uuid.UUID
	committedAt time.Time
	writes      map[string]entry
}

// errTruncated signals that the reader encountered a short read, a
// length field reaching past EOF, or a checksum mismatch — any of which
// means the trailing bytes are an incomplete or corrupt record and must
// be discarded, not treated as a fatal recovery error.
var errTruncated = errTruncatedSentinel{}

type errTruncatedSentinel struct{}

func (errTruncatedSentinel) Error() string { return "pathkvs: truncated record" }

// readRecord reads exactly one record starting at the reader's current
// position. It returns errTruncated (never a generic read error for a
// clean EOF or short read) when the tail is incomplete, so the caller
// can truncate the file there and continue operating. Any other read
// error is returned unchanged.
func readRecord(r io.Reader) (decodedRecord, int64, error) {
	var lenBuf [recordLenSize]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return decodedRecord{}, 0, io.EOF
		}
		if err != io.ErrUnexpectedEOF {
			return decodedRecord{}, 0, err
		}
		return decodedRecord{}, 0, errTruncated
	}
	recordLen := binary.LittleEndian.Uint32(lenBuf[:])
	if recordLen < recordFixedSize {
		return decodedRecord{}, 0, errTruncated
	}

	payload := make([]byte, recordLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			return decodedRecord{}, 0, err
		}
		return decodedRecord{}, 0, errTruncated
	}

	var crcBuf [crcSize]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			return decodedRecord{}, 0, err
		}
		return decodedRecord{}, 0, errTruncated
	}
	wantCRC := binary.LittleEndian.Uint32(crcBuf[:])
	if crc32.ChecksumIEEE(payload) != wantCRC {
		return decodedRecord{}, 0, errTruncated
	}

	dr, err := decodePayload(payload)
	if err != nil {
		return decodedRecord{}, 0, errTruncated
	}

	total := int64(recordLenSize) + int64(recordLen) + int64(crcSize)
	return dr, total, nil
}

func decodePayload(payload []byte) (decodedRecord, error) {
	if len(payload) < recordFixedSize {
		return decodedRecord{}, errTruncated
	}

	ts := int64(binary.LittleEndian.Uint64(payload[0:8]))
	var id uuid.UUID
	copy(id[:], payload[8:24])
	writeCount := binary.LittleEndian.Uint32(payload[24:28])

	rest := payload[28:]
	writes := make(map[string]entry, writeCount)

	for i := uint32(0); i < writeCount; i++ {
		if len(rest) < 4 {
			return decodedRecord{}, errTruncated
		}
		klen := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < klen {
			return decodedRecord{}, errTruncated
		}
		key := string(rest[:klen])
		rest = rest[klen:]

		if len(rest) < 1 {
			return decodedRecord{}, errTruncated
		}
		tombstone := rest[0] == 1
		rest = rest[1:]

		if tombstone {
			writes[key] = entry{tombstone: true}
			continue
		}

		if len(rest) < 4 {
			return decodedRecord{}, errTruncated
		}
		vlen := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < vlen {
			return decodedRecord{}, errTruncated
		}
		val := append([]byte(nil), rest[:vlen]...)
		rest = rest[vlen:]

		writes[key] = entry{val: val}
	}

	return decodedRecord{
		id:          id,
		committedAt: time.Unix(0, ts),
		writes:      writes,
	}, nil
}
