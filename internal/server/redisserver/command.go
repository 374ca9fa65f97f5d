package redisserver

import (
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/rediskv-go/internal/core/keyspace"
	"github.com/yndnr/rediskv-go/internal/telemetry/metric"
)

// StoreConfig holds the startup parameters exposed through CONFIG GET.
// Immutable after startup.
type StoreConfig struct {
	Dir        string
	DBFilename string
}

// ipLimiter keeps one token-bucket limiter per client IP.
type ipLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	perSec  rate.Limit
	burst   int
}

func newIPLimiter(requestsPerSecond int) *ipLimiter {
	return &ipLimiter{
		buckets: make(map[string]*rate.Limiter),
		perSec:  rate.Limit(requestsPerSecond),
		burst:   requestsPerSecond,
	}
}

// allow checks if a command from the given IP should be processed.
func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	b, ok := l.buckets[ip]
	if !ok {
		b = rate.NewLimiter(l.perSec, l.burst)
		l.buckets[ip] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// CommandHandler maps decoded commands onto keyspace operations and
// configuration queries. It holds no per-connection state.
type CommandHandler struct {
	store   *keyspace.Store
	cfg     StoreConfig
	logger  *slog.Logger
	metrics *metric.Metrics
	limiter *ipLimiter
	now     func() time.Time
}

// NewCommandHandler creates a new CommandHandler. metrics may be nil.
func NewCommandHandler(store *keyspace.Store, cfg StoreConfig, logger *slog.Logger, metrics *metric.Metrics, rateLimit int) *CommandHandler {
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *ipLimiter
	if rateLimit > 0 {
		limiter = newIPLimiter(rateLimit)
	}

	return &CommandHandler{
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		limiter: limiter,
		now:     time.Now,
	}
}

// Handle dispatches one command and writes the reply to conn.
func (h *CommandHandler) Handle(conn *Conn, args [][]byte) {
	if len(args) == 0 {
		h.writeError(conn, "ERR no command")
		return
	}

	cmdName := normalizeCommandName(args[0])

	if h.limiter != nil {
		ip := conn.RemoteAddr().String()
		if idx := strings.LastIndex(ip, ":"); idx != -1 {
			ip = ip[:idx]
		}
		if !h.limiter.allow(ip) {
			h.writeError(conn, "ERR rate limit exceeded")
			return
		}
	}

	h.metrics.Command(cmdName)

	switch cmdName {
	case "PING":
		h.handlePing(conn, args)
	case "ECHO":
		h.handleEcho(conn, args)
	case "SET":
		h.handleSet(conn, args)
	case "GET":
		h.handleGet(conn, args)
	case "KEYS":
		h.handleKeys(conn, args)
	case "CONFIG":
		h.handleConfig(conn, args)
	default:
		h.writeError(conn, "ERR unknown command '"+cmdName+"'")
	}
}

func (h *CommandHandler) writeError(conn *Conn, msg string) {
	h.metrics.ErrorReply()
	_ = WriteError(conn.bw, msg)
}

func (h *CommandHandler) handlePing(conn *Conn, args [][]byte) {
	switch len(args) {
	case 1:
		_ = WriteSimpleString(conn.bw, "PONG")
	case 2:
		_ = WriteBulk(conn.bw, args[1])
	default:
		h.writeError(conn, "ERR wrong number of arguments for 'ping' command")
	}
}

func (h *CommandHandler) handleEcho(conn *Conn, args [][]byte) {
	if len(args) != 2 {
		h.writeError(conn, "ERR wrong number of arguments for 'echo' command")
		return
	}
	_ = WriteBulk(conn.bw, args[1])
}

// handleSet handles SET key value [PX ms | EX s].
func (h *CommandHandler) handleSet(conn *Conn, args [][]byte) {
	if len(args) != 3 && len(args) != 5 {
		h.writeError(conn, "ERR wrong number of arguments for 'set' command")
		return
	}

	key, value := string(args[1]), string(args[2])

	var expiresAt int64
	if len(args) == 5 {
		n, err := strconv.ParseInt(string(args[4]), 10, 64)
		if err != nil || n <= 0 {
			h.writeError(conn, "ERR value is not an integer or out of range")
			return
		}

		switch strings.ToUpper(string(args[3])) {
		case "PX":
			expiresAt = h.now().UnixMilli() + n
		case "EX":
			expiresAt = h.now().UnixMilli() + n*1000
		default:
			h.writeError(conn, "ERR syntax error")
			return
		}
	}

	h.store.Set(key, value, expiresAt)
	_ = WriteSimpleString(conn.bw, "OK")
}

func (h *CommandHandler) handleGet(conn *Conn, args [][]byte) {
	if len(args) != 2 {
		h.writeError(conn, "ERR wrong number of arguments for 'get' command")
		return
	}

	value, ok := h.store.Get(string(args[1]))
	if !ok {
		_ = WriteNullBulk(conn.bw)
		return
	}
	_ = WriteBulkString(conn.bw, value)
}

func (h *CommandHandler) handleKeys(conn *Conn, args [][]byte) {
	if len(args) != 2 {
		h.writeError(conn, "ERR wrong number of arguments for 'keys' command")
		return
	}

	keys := h.store.Keys(string(args[1]))
	_ = WriteBulkArray(conn.bw, keys)
}

// handleConfig handles CONFIG GET <parameter>. Unknown parameters reply
// with an empty array, matching server behavior rather than an error.
func (h *CommandHandler) handleConfig(conn *Conn, args [][]byte) {
	if len(args) < 2 {
		h.writeError(conn, "ERR wrong number of arguments for 'config' command")
		return
	}

	sub := normalizeCommandName(args[1])
	if sub != "GET" {
		h.writeError(conn, "ERR unknown CONFIG subcommand or wrong number of arguments for '"+sub+"'")
		return
	}
	if len(args) != 3 {
		h.writeError(conn, "ERR wrong number of arguments for 'config|get' command")
		return
	}

	switch strings.ToLower(string(args[2])) {
	case "dir":
		_ = WriteBulkArray(conn.bw, []string{"dir", h.cfg.Dir})
	case "dbfilename":
		_ = WriteBulkArray(conn.bw, []string{"dbfilename", h.cfg.DBFilename})
	default:
		_ = WriteBulkArray(conn.bw, nil)
	}
}
