// Package rdb reads Redis RDB snapshot files.
//
// Only the subset needed to bootstrap the keyspace is supported: string
// values with optional expiry, plus the structural opcodes (auxiliary
// fields, database selectors, resize hints) that must be consumed to
// keep the cursor advancing. The file is read once at startup and never
// written.
package rdb

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yndnr/rediskv-go/internal/core/keyspace"
)

// Opcode bytes of the RDB section stream.
const (
	opAux       = 0xFA // auxiliary metadata key/value pair
	opResizeDB  = 0xFB // hash table size hints (two lengths)
	opExpireMS  = 0xFC // expiry of the next pair, ms, 8-byte LE
	opExpireSec = 0xFD // expiry of the next pair, s, 4-byte LE
	opSelectDB  = 0xFE // database selector (one length)
	opEOF       = 0xFF // end of file, followed by an 8-byte checksum
)

// typeString is the only value type this subset can represent.
const typeString = 0x00

// magic is the format family identifier at the start of every snapshot.
// The four version digits that follow are not interpreted.
const magic = "REDIS"

var (
	ErrBadHeader       = errors.New("rdb: invalid header")
	ErrTruncated       = errors.New("rdb: truncated stream")
	ErrUnknownOpcode   = errors.New("rdb: unknown opcode")
	ErrUnsupportedType = errors.New("rdb: unsupported value type")
)

// LoadFile parses the snapshot at dir/filename. A missing file is not
// an error: the keyspace simply starts empty. Any structural defect in
// an existing file is a fatal load error.
func LoadFile(dir, filename string) ([]keyspace.Record, error) {
	path := filepath.Join(dir, filename)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("rdb: open %s: %w", path, err)
	}
	defer f.Close()

	records, err := Parse(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("rdb: parse %s: %w", path, err)
	}
	return records, nil
}

// Parse reads an RDB stream and returns the key/value/expiry records it
// contains. Expiry timestamps are normalized to Unix milliseconds; a
// zero ExpiresAt means the key never expires.
func Parse(r *bufio.Reader) ([]keyspace.Record, error) {
	if err := readHeader(r); err != nil {
		return nil, err
	}

	var records []keyspace.Record
	var pendingExpiry int64

	for {
		op, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Physical end of stream without an EOF opcode.
				return records, nil
			}
			return nil, err
		}

		switch op {
		case opAux:
			// Metadata pair: parsed to keep the cursor aligned, then dropped.
			if _, err := readString(r); err != nil {
				return nil, err
			}
			if _, err := readString(r); err != nil {
				return nil, err
			}

		case opSelectDB:
			// Single implicit database; the index only advances the cursor.
			if _, err := readLength(r); err != nil {
				return nil, err
			}

		case opResizeDB:
			if _, err := readLength(r); err != nil {
				return nil, err
			}
			if _, err := readLength(r); err != nil {
				return nil, err
			}

		case opExpireMS:
			var buf [8]byte
			if err := readFull(r, buf[:]); err != nil {
				return nil, err
			}
			pendingExpiry = int64(binary.LittleEndian.Uint64(buf[:]))

		case opExpireSec:
			var buf [4]byte
			if err := readFull(r, buf[:]); err != nil {
				return nil, err
			}
			pendingExpiry = int64(binary.LittleEndian.Uint32(buf[:])) * 1000

		case opEOF:
			// Trailing CRC64; consumed, never validated. Older format
			// versions may omit it entirely.
			var sum [8]byte
			if _, err := io.ReadFull(r, sum[:]); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, err
			}
			return records, nil

		case typeString:
			key, err := readString(r)
			if err != nil {
				return nil, err
			}
			value, err := readString(r)
			if err != nil {
				return nil, err
			}
			records = append(records, keyspace.Record{
				Key:       key,
				Value:     value,
				ExpiresAt: pendingExpiry,
			})
			pendingExpiry = 0

		default:
			// Bytes below 0x16 are value-type tags for kinds this
			// subset cannot represent (lists, sets, hashes, streams).
			if op <= 0x15 {
				return nil, fmt.Errorf("%w: 0x%02X", ErrUnsupportedType, op)
			}
			return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownOpcode, op)
		}
	}
}

func readHeader(r *bufio.Reader) error {
	var buf [len(magic) + 4]byte
	if err := readFull(r, buf[:]); err != nil {
		return ErrBadHeader
	}
	if string(buf[:len(magic)]) != magic {
		return fmt.Errorf("%w: %q", ErrBadHeader, buf[:])
	}
	for _, b := range buf[len(magic):] {
		if b < '0' || b > '9' {
			return fmt.Errorf("%w: bad version %q", ErrBadHeader, buf[len(magic):])
		}
	}
	return nil
}

// readLength decodes the variable-length integer used for lengths and
// database indexes. The two high bits of the first byte select the
// form: 00 = 6-bit, 01 = 14-bit, 10 = 32-bit big-endian. The 11 form
// marks a specially-encoded string and is rejected here; readString
// handles it.
func readLength(r *bufio.Reader) (int, error) {
	n, special, err := readLengthOrSpecial(r)
	if err != nil {
		return 0, err
	}
	if special != 0 {
		return 0, fmt.Errorf("%w: special encoding 0x%02X where a length was expected", ErrUnknownOpcode, special)
	}
	return n, nil
}

// readLengthOrSpecial returns either a plain length (special == 0) or
// the leading byte of a special-integer encoding (special != 0).
func readLengthOrSpecial(r *bufio.Reader) (int, byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, truncated(err)
	}

	switch b >> 6 {
	case 0b00:
		return int(b & 0x3F), 0, nil
	case 0b01:
		next, err := r.ReadByte()
		if err != nil {
			return 0, 0, truncated(err)
		}
		return int(b&0x3F)<<8 | int(next), 0, nil
	case 0b10:
		var buf [4]byte
		if err := readFull(r, buf[:]); err != nil {
			return 0, 0, err
		}
		return int(binary.BigEndian.Uint32(buf[:])), 0, nil
	default:
		return 0, b, nil
	}
}

// readString decodes a length-prefixed string. Special-integer forms
// (0xC0/0xC1/0xC2) hold an 8/16/32-bit little-endian integer and decode
// to its decimal text; 0xC3 is LZF compression, which this subset
// rejects.
func readString(r *bufio.Reader) (string, error) {
	n, special, err := readLengthOrSpecial(r)
	if err != nil {
		return "", err
	}

	if special != 0 {
		switch special {
		case 0xC0:
			b, err := r.ReadByte()
			if err != nil {
				return "", truncated(err)
			}
			return strconv.FormatInt(int64(int8(b)), 10), nil
		case 0xC1:
			var buf [2]byte
			if err := readFull(r, buf[:]); err != nil {
				return "", err
			}
			return strconv.FormatInt(int64(int16(binary.LittleEndian.Uint16(buf[:]))), 10), nil
		case 0xC2:
			var buf [4]byte
			if err := readFull(r, buf[:]); err != nil {
				return "", err
			}
			return strconv.FormatInt(int64(int32(binary.LittleEndian.Uint32(buf[:]))), 10), nil
		default:
			return "", fmt.Errorf("%w: string encoding 0x%02X", ErrUnsupportedType, special)
		}
	}

	buf := make([]byte, n)
	if err := readFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		return truncated(err)
	}
	return nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}
