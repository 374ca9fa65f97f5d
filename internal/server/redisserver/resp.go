package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits to keep malformed or hostile clients bounded.
const (
	// MaxArrayLen limits the number of elements in a RESP array.
	MaxArrayLen = 1024

	// MaxBulkLen limits the size of a single bulk string (512KB).
	MaxBulkLen = 512 * 1024

	// MaxInlineLen limits inline command line length (4KB).
	MaxInlineLen = 4 * 1024
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

// ReadCommand decodes one client command from the stream: a RESP array
// of bulk strings, or an inline command line. The bufio.Reader carries
// any partially-received bytes across calls, so a command split over
// several socket reads is reassembled transparently.
func ReadCommand(r *bufio.Reader) ([][]byte, error) {
	b, err := r.Peek(1)
	if err != nil {
		return nil, err
	}

	if b[0] == '*' {
		return readArrayCommand(r)
	}

	// Inline command (rare, but used by some clients): "PING\r\n"
	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return nil, err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	parts := strings.Fields(line)
	out := make([][]byte, 0, len(parts))
	for _, p := range parts {
		out = append(out, []byte(p))
	}
	return out, nil
}

func readArrayCommand(r *bufio.Reader) ([][]byte, error) {
	// "*<n>\r\n"
	line, err := readLine(r, 64)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '*' {
		return nil, fmt.Errorf("%w: expected array", ErrProtocol)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid array length", ErrProtocol)
	}
	if n <= 0 {
		return nil, nil
	}
	if n > MaxArrayLen {
		return nil, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, n, MaxArrayLen)
	}

	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		arg, err := readBulkArg(r)
		if err != nil {
			return nil, err
		}
		out = append(out, arg)
	}
	return out, nil
}

func readBulkArg(r *bufio.Reader) ([]byte, error) {
	line, err := readLine(r, 64)
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[0] != '$' {
		return nil, fmt.Errorf("%w: expected bulk string", ErrProtocol)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if n > MaxBulkLen {
		return nil, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, n, MaxBulkLen)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if !bytes.HasSuffix(buf, []byte("\r\n")) {
		return nil, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}
	return buf[:len(buf)-2], nil
}

func readLine(r *bufio.Reader, maxLen int) (string, error) {
	if maxLen <= 0 {
		return "", fmt.Errorf("%w: invalid maxLen", ErrProtocol)
	}

	var buf []byte
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			buf = append(buf, frag...)
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			buf = append(buf, frag...)
			if len(buf) > maxLen {
				return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
			}
			continue
		}
		return "", err
	}

	if len(buf) > maxLen {
		return "", fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, maxLen)
	}
	if len(buf) < 2 || !bytes.HasSuffix(buf, []byte("\r\n")) {
		return "", fmt.Errorf("%w: missing CRLF", ErrProtocol)
	}

	return string(bytes.TrimSuffix(buf, []byte("\r\n"))), nil
}

// WriteCommand encodes a command as a RESP array of bulk strings. Used
// by the client side (rediskv-cli and tests).
func WriteCommand(w *bufio.Writer, args ...string) error {
	if err := WriteArrayHeader(w, len(args)); err != nil {
		return err
	}
	for _, a := range args {
		if err := WriteBulkString(w, a); err != nil {
			return err
		}
	}
	return nil
}

func WriteSimpleString(w *bufio.Writer, s string) error {
	_, err := w.WriteString("+" + s + "\r\n")
	return err
}

// WriteError writes an error reply. Error replies are single-line by
// definition, so embedded line breaks are flattened to spaces.
func WriteError(w *bufio.Writer, s string) error {
	if strings.ContainsAny(s, "\r\n") {
		s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	}
	_, err := w.WriteString("-" + s + "\r\n")
	return err
}

func WriteInteger(w *bufio.Writer, n int64) error {
	_, err := w.WriteString(":" + strconv.FormatInt(n, 10) + "\r\n")
	return err
}

func WriteNullBulk(w *bufio.Writer) error {
	_, err := w.WriteString("$-1\r\n")
	return err
}

func WriteBulk(w *bufio.Writer, b []byte) error {
	if b == nil {
		return WriteNullBulk(w)
	}
	if _, err := w.WriteString("$" + strconv.Itoa(len(b)) + "\r\n"); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func WriteBulkString(w *bufio.Writer, s string) error {
	return WriteBulk(w, []byte(s))
}

func WriteArrayHeader(w *bufio.Writer, n int) error {
	_, err := w.WriteString("*" + strconv.Itoa(n) + "\r\n")
	return err
}

// WriteBulkArray writes an array of bulk strings, the reply shape of
// KEYS and CONFIG GET.
func WriteBulkArray(w *bufio.Writer, elems []string) error {
	if err := WriteArrayHeader(w, len(elems)); err != nil {
		return err
	}
	for _, e := range elems {
		if err := WriteBulkString(w, e); err != nil {
			return err
		}
	}
	return nil
}

// ReplyKind identifies the RESP type of a decoded reply.
type ReplyKind byte

const (
	SimpleStringReply ReplyKind = '+'
	ErrorReply        ReplyKind = '-'
	IntegerReply      ReplyKind = ':'
	BulkReply         ReplyKind = '$'
	ArrayReply        ReplyKind = '*'
)

// Reply is one decoded server response.
type Reply struct {
	Kind  ReplyKind
	Str   string  // simple string or error text
	Int   int64   // integer reply
	Bulk  []byte  // bulk payload; nil when Nil is set
	Nil   bool    // null bulk string
	Elems []Reply // array elements
}

// ReadReply decodes one server reply from the stream. It is the inverse
// of the Write* helpers and is used by rediskv-cli and the codec tests.
func ReadReply(r *bufio.Reader) (Reply, error) {
	line, err := readLine(r, MaxInlineLen)
	if err != nil {
		return Reply{}, err
	}
	if len(line) < 1 {
		return Reply{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	kind, rest := ReplyKind(line[0]), line[1:]
	switch kind {
	case SimpleStringReply, ErrorReply:
		return Reply{Kind: kind, Str: rest}, nil

	case IntegerReply:
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: invalid integer reply", ErrProtocol)
		}
		return Reply{Kind: kind, Int: n}, nil

	case BulkReply:
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
		}
		if n == -1 {
			return Reply{Kind: kind, Nil: true}, nil
		}
		if n < 0 || n > MaxBulkLen {
			return Reply{}, fmt.Errorf("%w: invalid bulk length %d", ErrProtocol, n)
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Reply{}, err
		}
		if !bytes.HasSuffix(buf, []byte("\r\n")) {
			return Reply{}, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
		}
		return Reply{Kind: kind, Bulk: buf[:n]}, nil

	case ArrayReply:
		n, err := strconv.Atoi(rest)
		if err != nil {
			return Reply{}, fmt.Errorf("%w: invalid array length", ErrProtocol)
		}
		if n == -1 {
			return Reply{Kind: kind, Nil: true}, nil
		}
		if n < 0 || n > MaxArrayLen {
			return Reply{}, fmt.Errorf("%w: invalid array length %d", ErrProtocol, n)
		}
		elems := make([]Reply, 0, n)
		for i := 0; i < n; i++ {
			el, err := ReadReply(r)
			if err != nil {
				return Reply{}, err
			}
			elems = append(elems, el)
		}
		return Reply{Kind: kind, Elems: elems}, nil

	default:
		return Reply{}, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, line[0])
	}
}

func normalizeCommandName(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	// Uppercase ASCII without allocating for already uppercased tokens.
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return strings.ToUpper(string(b))
	}
	return string(b)
}
