package rdb

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yndnr/rediskv-go/internal/core/keyspace"
)

// fixture builds RDB byte streams for tests.
type fixture struct {
	bytes.Buffer
}

func newFixture() *fixture {
	f := &fixture{}
	f.WriteString("REDIS0011")
	return f
}

func (f *fixture) str(s string) *fixture {
	if len(s) > 0x3F {
		panic("fixture strings use the 6-bit length form")
	}
	f.WriteByte(byte(len(s)))
	f.WriteString(s)
	return f
}

func (f *fixture) aux(key, value string) *fixture {
	f.WriteByte(opAux)
	return f.str(key).str(value)
}

func (f *fixture) selectDB(n byte) *fixture {
	f.WriteByte(opSelectDB)
	f.WriteByte(n)
	return f
}

func (f *fixture) resize(hashSize, expireSize byte) *fixture {
	f.WriteByte(opResizeDB)
	f.WriteByte(hashSize)
	f.WriteByte(expireSize)
	return f
}

func (f *fixture) expireMS(ms uint64) *fixture {
	f.WriteByte(opExpireMS)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], ms)
	f.Write(buf[:])
	return f
}

func (f *fixture) expireSec(s uint32) *fixture {
	f.WriteByte(opExpireSec)
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], s)
	f.Write(buf[:])
	return f
}

func (f *fixture) pair(key, value string) *fixture {
	f.WriteByte(typeString)
	return f.str(key).str(value)
}

func (f *fixture) eof() *fixture {
	f.WriteByte(opEOF)
	f.Write(make([]byte, 8)) // checksum, not validated
	return f
}

func (f *fixture) parse() ([]keyspace.Record, error) {
	return Parse(bufio.NewReader(bytes.NewReader(f.Bytes())))
}

func TestParse_SinglePair(t *testing.T) {
	records, err := newFixture().selectDB(0).pair("foo", "bar").eof().parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Key != "foo" || r.Value != "bar" || r.ExpiresAt != 0 {
		t.Errorf("record = %+v, want {foo bar 0}", r)
	}
}

func TestParse_FullLayout(t *testing.T) {
	f := newFixture().
		aux("redis-ver", "7.2.0").
		aux("redis-bits", "64").
		selectDB(0).
		resize(3, 1).
		pair("plain", "value").
		expireMS(1_700_000_000_123).
		pair("with-ms", "v1").
		expireSec(1_700_000_000).
		pair("with-sec", "v2").
		eof()

	records, err := f.parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	want := []keyspace.Record{
		{Key: "plain", Value: "value", ExpiresAt: 0},
		{Key: "with-ms", Value: "v1", ExpiresAt: 1_700_000_000_123},
		{Key: "with-sec", Value: "v2", ExpiresAt: 1_700_000_000_000},
	}
	for i, w := range want {
		if records[i] != w {
			t.Errorf("records[%d] = %+v, want %+v", i, records[i], w)
		}
	}
}

func TestParse_ExpiryAppliesToNextPairOnly(t *testing.T) {
	f := newFixture().
		expireMS(42_000).
		pair("a", "1").
		pair("b", "2").
		eof()

	records, err := f.parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if records[0].ExpiresAt != 42_000 {
		t.Errorf("a.ExpiresAt = %d, want 42000", records[0].ExpiresAt)
	}
	if records[1].ExpiresAt != 0 {
		t.Errorf("b.ExpiresAt = %d, want 0 (expiry must not leak)", records[1].ExpiresAt)
	}
}

func TestParse_LengthEncodings(t *testing.T) {
	key14 := bytes.Repeat([]byte("k"), 300)  // needs the 14-bit form
	val32 := bytes.Repeat([]byte("v"), 5000) // exercised via the 32-bit form

	var f fixture
	f.WriteString("REDIS0003")
	f.WriteByte(typeString)
	// 14-bit length: 01xxxxxx xxxxxxxx
	f.WriteByte(0x40 | byte(len(key14)>>8))
	f.WriteByte(byte(len(key14) & 0xFF))
	f.Write(key14)
	// 32-bit length: 10000000 + 4 bytes big-endian
	f.WriteByte(0x80)
	var lbuf [4]byte
	binary.BigEndian.PutUint32(lbuf[:], uint32(len(val32)))
	f.Write(lbuf[:])
	f.Write(val32)
	f.eof()

	records, err := f.parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if records[0].Key != string(key14) {
		t.Errorf("14-bit length key mismatch: got %d bytes, want %d", len(records[0].Key), len(key14))
	}
	if records[0].Value != string(val32) {
		t.Errorf("32-bit length value mismatch: got %d bytes, want %d", len(records[0].Value), len(val32))
	}
}

func TestParse_IntegerEncodedValues(t *testing.T) {
	var f fixture
	f.WriteString("REDIS0011")

	f.WriteByte(typeString)
	f.str("i8")
	f.WriteByte(0xC0)
	f.WriteByte(0x85) // int8(-123)

	f.WriteByte(typeString)
	f.str("i16")
	f.WriteByte(0xC1)
	var b16 [2]byte
	binary.LittleEndian.PutUint16(b16[:], uint16(12345))
	f.Write(b16[:])

	f.WriteByte(typeString)
	f.str("i32")
	f.WriteByte(0xC2)
	var b32 [4]byte
	binary.LittleEndian.PutUint32(b32[:], uint32(1_000_000))
	f.Write(b32[:])

	f.eof()

	records, err := f.parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := map[string]string{"i8": "-123", "i16": "12345", "i32": "1000000"}
	for _, r := range records {
		if r.Value != want[r.Key] {
			t.Errorf("%s = %q, want %q", r.Key, r.Value, want[r.Key])
		}
	}
}

func TestParse_NoEOFOpcode(t *testing.T) {
	// Stream that simply ends after the last pair.
	f := newFixture().pair("foo", "bar")
	records, err := f.parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records, want 1", len(records))
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "bad magic",
			data:    []byte("RODIS0011"),
			wantErr: ErrBadHeader,
		},
		{
			name:    "bad version digits",
			data:    []byte("REDIS00xx"),
			wantErr: ErrBadHeader,
		},
		{
			name:    "short header",
			data:    []byte("RED"),
			wantErr: ErrBadHeader,
		},
		{
			name:    "unknown opcode",
			data:    append([]byte("REDIS0011"), 0xF9),
			wantErr: ErrUnknownOpcode,
		},
		{
			name:    "unsupported value type",
			data:    append([]byte("REDIS0011"), 0x04), // hash type
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "truncated string payload",
			data:    append([]byte("REDIS0011"), typeString, 0x05, 'a', 'b'),
			wantErr: ErrTruncated,
		},
		{
			name:    "truncated expiry",
			data:    append([]byte("REDIS0011"), opExpireMS, 0x01, 0x02),
			wantErr: ErrTruncated,
		},
		{
			name:    "lzf compressed string",
			data:    append([]byte("REDIS0011"), typeString, 0x03, 'k', 'e', 'y', 0xC3),
			wantErr: ErrUnsupportedType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bufio.NewReader(bytes.NewReader(tt.data)))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	records, err := LoadFile(t.TempDir(), "nope.rdb")
	if err != nil {
		t.Fatalf("LoadFile() error = %v, want nil for a missing file", err)
	}
	if records != nil {
		t.Errorf("records = %v, want nil", records)
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	f := newFixture().
		selectDB(0).
		pair("foo", "bar").
		expireMS(1).
		pair("baz", "qux").
		eof()

	if err := os.WriteFile(filepath.Join(dir, "dump.rdb"), f.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	records, err := LoadFile(dir, "dump.rdb")
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	// Populating the keyspace makes the past expiry logically absent.
	store := keyspace.New()
	store.LoadBulk(records)
	if v, ok := store.Get("foo"); !ok || v != "bar" {
		t.Errorf("Get(foo) = %q, %v; want bar, true", v, ok)
	}
	if _, ok := store.Get("baz"); ok {
		t.Error("Get(baz) should report absence for an already-expired key")
	}
}

func TestLoadFile_BadFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dump.rdb"), []byte("not an rdb"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(dir, "dump.rdb"); !errors.Is(err, ErrBadHeader) {
		t.Errorf("LoadFile() error = %v, want ErrBadHeader", err)
	}
}
