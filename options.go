package redisreplica

import (
	"crypto/tls"
	"time"
)

// config holds the immutable settings for a session attempt: master
// address, TLS, auth, timeouts, buffering, rate limiting, and the
// telemetry hooks. There is deliberately no listening-server or
// keyspace configuration here — this module never acts as a primary or
// exposes its own RESP server, see DESIGN.md for the per-option
// rationale.
type config struct {
	masterAddr string
	masterTLS  *tls.Config

	authUser     string
	authPassword string

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	heartbeatPeriod time.Duration

	bufferSize              int
	asyncCachedBytes        int
	rateLimitBytesPerSecond int

	slavePort   int
	replFilters []ReplFilter

	replID     string
	replOffset int64

	discardRdbEvent            bool
	useDefaultExceptionListener bool
	verbose                    bool

	commandFilters map[string]struct{}

	logger  Logger
	metrics MetricsCollector
}

// defaultConfig returns a configuration with sensible defaults.
func defaultConfig() *config {
	return &config{
		masterAddr:                  "localhost:6379",
		connectTimeout:              5 * time.Second,
		readTimeout:                 30 * time.Second,
		writeTimeout:                10 * time.Second,
		heartbeatPeriod:             10 * time.Second,
		bufferSize:                  16 * 1024,
		replID:                      "?",
		replOffset:                  -1,
		useDefaultExceptionListener: true,
		logger:                      &defaultLogger{},
		commandFilters:              make(map[string]struct{}),
	}
}

// Option configures a Session at construction time.
type Option func(*config) error

// WithMaster sets the primary's address.
func WithMaster(addr string) Option {
	return func(c *config) error {
		if addr == "" {
			return &TransportError{Addr: addr, Err: ErrInvalidConfig}
		}
		c.masterAddr = addr
		return nil
	}
}

// WithMasterAuth sets the AUTH password sent during the handshake. An
// empty password disables AUTH entirely.
func WithMasterAuth(password string) Option {
	return func(c *config) error {
		c.authPassword = password
		return nil
	}
}

// WithMasterAuthUser sets the optional AUTH username (Redis 6 ACL
// auth). Only meaningful together with WithMasterAuth.
func WithMasterAuthUser(user string) Option {
	return func(c *config) error {
		c.authUser = user
		return nil
	}
}

// WithConnectTimeout bounds socket establishment and scheduler
// shutdown.
func WithConnectTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.connectTimeout = timeout
		return nil
	}
}

// WithReadTimeout sets the read deadline refreshed around each blocking
// socket read.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout sets the write deadline applied to handshake and
// heartbeat writes.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *config) error {
		if timeout <= 0 {
			return ErrInvalidConfig
		}
		c.writeTimeout = timeout
		return nil
	}
}

// WithHeartbeatInterval sets the fixed-delay period between
// REPLCONF ACK heartbeats. A negative value disables the heartbeat
// entirely; zero selects the default.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *config) error {
		if interval == 0 {
			return nil
		}
		if interval < 0 {
			c.heartbeatPeriod = 0
			return nil
		}
		c.heartbeatPeriod = interval
		return nil
	}
}

// WithBufferSize sets the buffered reader/writer size WireIO wraps the
// socket in.
func WithBufferSize(bytes int) Option {
	return func(c *config) error {
		if bytes <= 0 {
			return ErrInvalidConfig
		}
		c.bufferSize = bytes
		return nil
	}
}

// WithAsyncReadAhead enables a background prefetch buffer of the given
// capacity. 0 (the default) disables it.
func WithAsyncReadAhead(bytes int) Option {
	return func(c *config) error {
		if bytes < 0 {
			return ErrInvalidConfig
		}
		c.asyncCachedBytes = bytes
		return nil
	}
}

// WithRateLimit caps sustained read throughput to bytesPerSecond. 0
// (the default) disables the limiter.
func WithRateLimit(bytesPerSecond int) Option {
	return func(c *config) error {
		if bytesPerSecond < 0 {
			return ErrInvalidConfig
		}
		c.rateLimitBytesPerSecond = bytesPerSecond
		return nil
	}
}

// WithListeningPort advertises port via REPLCONF listening-port. 0 (the
// default) advertises the local ephemeral port actually bound.
func WithListeningPort(port int) Option {
	return func(c *config) error {
		if port < 0 || port > 65535 {
			return ErrInvalidConfig
		}
		c.slavePort = port
		return nil
	}
}

// WithReplFilter appends a capability advertisement sent during the
// handshake after the standard capa negotiation.
func WithReplFilter(filter ReplFilter) Option {
	return func(c *config) error {
		c.replFilters = append(c.replFilters, filter)
		return nil
	}
}

// WithReplicationSeed seeds (replId, replOffset) so PSYNC can attempt a
// partial resynchronization instead of a full one. Pass "?" and -1 for
// a cold start.
func WithReplicationSeed(replID string, replOffset int64) Option {
	return func(c *config) error {
		if replID == "" {
			return ErrInvalidConfig
		}
		c.replID = replID
		c.replOffset = replOffset
		return nil
	}
}

// WithDiscardRdbEvent skips fixed-length RDB payloads byte-for-byte
// instead of decoding them, when the caller only cares about the
// command stream that follows.
func WithDiscardRdbEvent(discard bool) Option {
	return func(c *config) error {
		c.discardRdbEvent = discard
		return nil
	}
}

// WithDefaultExceptionListener controls whether a logger-backed
// exception listener is registered automatically (default true).
func WithDefaultExceptionListener(enabled bool) Option {
	return func(c *config) error {
		c.useDefaultExceptionListener = enabled
		return nil
	}
}

// WithVerbose enables debug-level command tracing.
func WithVerbose(verbose bool) Option {
	return func(c *config) error {
		c.verbose = verbose
		return nil
	}
}

// WithLogger installs a custom logger.
func WithLogger(logger Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return ErrInvalidConfig
		}
		c.logger = logger
		return nil
	}
}

// WithMetrics installs a metrics collector.
func WithMetrics(collector MetricsCollector) Option {
	return func(c *config) error {
		c.metrics = collector
		return nil
	}
}

// WithTLS configures TLS for the primary connection.
func WithTLS(tlsConfig *tls.Config) Option {
	return func(c *config) error {
		c.masterTLS = tlsConfig
		return nil
	}
}

// WithSecureTLS configures TLS with secure defaults for the primary
// connection: certificate verification enforced, TLS 1.2 minimum.
func WithSecureTLS(serverName string) Option {
	return func(c *config) error {
		if serverName == "" {
			return ErrInvalidConfig
		}
		c.masterTLS = &tls.Config{
			ServerName: serverName,
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
		return nil
	}
}

// WithCommandFilters restricts which commands are dispatched to
// listeners. An empty set (the default) dispatches every command.
func WithCommandFilters(commands []string) Option {
	return func(c *config) error {
		c.commandFilters = make(map[string]struct{}, len(commands))
		for _, cmd := range commands {
			c.commandFilters[cmd] = struct{}{}
		}
		return nil
	}
}
