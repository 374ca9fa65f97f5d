package redisserver

import (
	"bufio"
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/rediskv-go/internal/core/keyspace"
)

// testConn wraps a Conn whose writes land in a buffer.
type testConn struct {
	*Conn
	output *bytes.Buffer
	server net.Conn
	client net.Conn
}

func newTestConn() *testConn {
	server, client := net.Pipe()
	output := &bytes.Buffer{}

	tc := &testConn{
		output: output,
		server: server,
		client: client,
	}
	tc.Conn = &Conn{
		id:      "test-conn",
		netConn: server,
		br:      bufio.NewReader(server),
		bw:      bufio.NewWriter(output),
	}
	return tc
}

func (tc *testConn) Close() {
	tc.server.Close()
	tc.client.Close()
}

func (tc *testConn) Output() string {
	tc.bw.Flush()
	out := tc.output.String()
	tc.output.Reset()
	return out
}

func newTestHandler(t *testing.T) (*CommandHandler, *keyspace.Store) {
	t.Helper()
	store := keyspace.New()
	cfg := StoreConfig{Dir: "/tmp", DBFilename: "dump.rdb"}
	return NewCommandHandler(store, cfg, nil, nil, 0), store
}

func dispatch(h *CommandHandler, tc *testConn, args ...string) string {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	h.Handle(tc.Conn, raw)
	return tc.Output()
}

func TestHandle_Ping(t *testing.T) {
	h, _ := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	if got := dispatch(h, tc, "PING"); got != "+PONG\r\n" {
		t.Errorf("PING = %q, want +PONG", got)
	}
	if got := dispatch(h, tc, "PING", "hello"); got != "$5\r\nhello\r\n" {
		t.Errorf("PING hello = %q, want bulk hello", got)
	}
	if got := dispatch(h, tc, "PING", "a", "b"); !strings.HasPrefix(got, "-ERR wrong number of arguments") {
		t.Errorf("PING a b = %q, want arity error", got)
	}
}

func TestHandle_CaseInsensitive(t *testing.T) {
	h, _ := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	if got := dispatch(h, tc, "ping"); got != "+PONG\r\n" {
		t.Errorf("ping = %q, want +PONG", got)
	}
	if got := dispatch(h, tc, "EcHo", "hi"); got != "$2\r\nhi\r\n" {
		t.Errorf("EcHo = %q, want bulk hi", got)
	}
}

func TestHandle_Echo(t *testing.T) {
	h, _ := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	if got := dispatch(h, tc, "ECHO", "hello"); got != "$5\r\nhello\r\n" {
		t.Errorf("ECHO hello = %q", got)
	}
	if got := dispatch(h, tc, "ECHO"); !strings.HasPrefix(got, "-ERR wrong number of arguments") {
		t.Errorf("ECHO = %q, want arity error", got)
	}
}

func TestHandle_SetGet(t *testing.T) {
	h, store := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	if got := dispatch(h, tc, "SET", "foo", "bar"); got != "+OK\r\n" {
		t.Fatalf("SET = %q, want +OK", got)
	}
	if got := dispatch(h, tc, "GET", "foo"); got != "$3\r\nbar\r\n" {
		t.Errorf("GET foo = %q, want bulk bar", got)
	}
	if got := dispatch(h, tc, "GET", "missing"); got != "$-1\r\n" {
		t.Errorf("GET missing = %q, want null bulk", got)
	}
	if v, ok := store.Get("foo"); !ok || v != "bar" {
		t.Errorf("store.Get(foo) = %q, %v", v, ok)
	}
}

func TestHandle_SetWithExpiry(t *testing.T) {
	h, store := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	// Pin the handler clock so the computed deadline is deterministic.
	base := time.Now()
	h.now = func() time.Time { return base }

	tests := []struct {
		name string
		args []string
	}{
		{"PX", []string{"SET", "k1", "v", "PX", "1500"}},
		{"px lowercase", []string{"SET", "k2", "v", "px", "60000"}},
		{"EX", []string{"SET", "k3", "v", "EX", "2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dispatch(h, tc, tt.args...); got != "+OK\r\n" {
				t.Fatalf("SET = %q, want +OK", got)
			}
		})
	}

	// Every key is live right after the SET.
	for _, tt := range tests {
		key := tt.args[1]
		if _, ok := store.Get(key); !ok {
			t.Errorf("%s: key %q should be live before expiry", tt.name, key)
		}
	}
}

func TestHandle_SetErrors(t *testing.T) {
	h, _ := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"too few args", []string{"SET", "k"}, "-ERR wrong number of arguments"},
		{"dangling option", []string{"SET", "k", "v", "PX"}, "-ERR wrong number of arguments"},
		{"unknown option", []string{"SET", "k", "v", "XX", "10"}, "-ERR syntax error"},
		{"non-integer expiry", []string{"SET", "k", "v", "PX", "soon"}, "-ERR value is not an integer"},
		{"negative expiry", []string{"SET", "k", "v", "PX", "-5"}, "-ERR value is not an integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dispatch(h, tc, tt.args...); !strings.HasPrefix(got, tt.want) {
				t.Errorf("got %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestHandle_Keys(t *testing.T) {
	h, store := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	store.Set("foo", "1", 0)
	store.Set("foobar", "2", 0)
	store.Set("other", "3", 0)

	got := dispatch(h, tc, "KEYS", "foo*")
	if !strings.HasPrefix(got, "*2\r\n") {
		t.Errorf("KEYS foo* = %q, want 2-element array", got)
	}
	if !strings.Contains(got, "$3\r\nfoo\r\n") || !strings.Contains(got, "$6\r\nfoobar\r\n") {
		t.Errorf("KEYS foo* = %q, missing expected keys", got)
	}

	if got := dispatch(h, tc, "KEYS"); !strings.HasPrefix(got, "-ERR wrong number of arguments") {
		t.Errorf("KEYS = %q, want arity error", got)
	}
}

func TestHandle_ConfigGet(t *testing.T) {
	h, _ := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"dir", []string{"CONFIG", "GET", "dir"}, "*2\r\n$3\r\ndir\r\n$4\r\n/tmp\r\n"},
		{"dbfilename", []string{"CONFIG", "GET", "dbfilename"}, "*2\r\n$10\r\ndbfilename\r\n$8\r\ndump.rdb\r\n"},
		{"case-insensitive parameter", []string{"config", "get", "DIR"}, "*2\r\n$3\r\ndir\r\n$4\r\n/tmp\r\n"},
		{"unknown parameter", []string{"CONFIG", "GET", "maxmemory"}, "*0\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dispatch(h, tc, tt.args...); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if got := dispatch(h, tc, "CONFIG", "SET", "dir", "/x"); !strings.HasPrefix(got, "-ERR unknown CONFIG subcommand") {
		t.Errorf("CONFIG SET = %q, want subcommand error", got)
	}
	if got := dispatch(h, tc, "CONFIG"); !strings.HasPrefix(got, "-ERR wrong number of arguments") {
		t.Errorf("CONFIG = %q, want arity error", got)
	}
}

func TestHandle_UnknownCommand(t *testing.T) {
	h, _ := newTestHandler(t)
	tc := newTestConn()
	defer tc.Close()

	if got := dispatch(h, tc, "FLUSHALL"); got != "-ERR unknown command 'FLUSHALL'\r\n" {
		t.Errorf("FLUSHALL = %q, want unknown command error", got)
	}

	// The connection stays usable afterwards.
	if got := dispatch(h, tc, "PING"); got != "+PONG\r\n" {
		t.Errorf("PING after unknown command = %q, want +PONG", got)
	}
}

func TestHandle_ConcurrentSets(t *testing.T) {
	h, store := newTestHandler(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			tc := newTestConn()
			defer tc.Close()
			for i := 0; i < 50; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				dispatch(h, tc, "SET", key, key)
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		for i := 0; i < 50; i++ {
			key := fmt.Sprintf("g%d-k%d", g, i)
			if v, ok := store.Get(key); !ok || v != key {
				t.Fatalf("store.Get(%s) = %q, %v", key, v, ok)
			}
		}
	}
}

func TestHandle_RateLimit(t *testing.T) {
	store := keyspace.New()
	h := NewCommandHandler(store, StoreConfig{}, nil, nil, 1)
	tc := newTestConn()
	defer tc.Close()

	// First command passes, the burst is exhausted quickly after.
	if got := dispatch(h, tc, "PING"); got != "+PONG\r\n" {
		t.Fatalf("first PING = %q, want +PONG", got)
	}

	limited := false
	for i := 0; i < 10; i++ {
		if strings.HasPrefix(dispatch(h, tc, "PING"), "-ERR rate limit exceeded") {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limiter never rejected at 1 req/s")
	}
}
