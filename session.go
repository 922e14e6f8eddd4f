package redisreplica

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/replikit/redis-replicator/internal/command"
	"github.com/replikit/redis-replicator/internal/rdb"
	"github.com/replikit/redis-replicator/internal/wireio"
)

// Status is a ReplicationSession's coarse connection state.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Disconnecting
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// syncMode is the SyncFsm's current mode, distinct from Status: a
// session can be Connected while in PSYNC, SYNC, or waiting out a
// SYNC_LATER backoff.
type syncMode int

const (
	modeNone syncMode = iota
	modePSYNC
	modeSync
	modeSyncLater
)

// Session is a Redis replication client: one instance drives the
// handshake, initial snapshot, and command stream against a single
// primary, reconnecting under the retrier's policy until Close is called.
// The handshake, sync, and retry concerns live in separate files
// (handshake.go, sync.go, retrier.go) rather than one large method.
type Session struct {
	cfg *config

	mu         sync.RWMutex
	conn       net.Conn
	chain      *wireio.Chain
	status     Status
	mode       syncMode
	replID     string
	replOffset int64
	currentDB  int

	manualClose int32

	bus       *eventBus
	registry  *command.Registry
	rdbDriver *rdb.Driver
	heartbeat *scheduler

	stats *ReplicationStats

	connectedCh chan struct{}
	connectOnce sync.Once
	doneCh      chan struct{}
	cancel      context.CancelFunc
}

// New constructs a Session from options but does not connect. Call Open
// to start the retrier loop.
func New(opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.masterAddr == "" {
		return nil, ErrInvalidConfig
	}

	s := &Session{
		cfg:         cfg,
		status:      Disconnected,
		mode:        modeNone,
		replID:      cfg.replID,
		replOffset:  cfg.replOffset,
		currentDB:   -1,
		bus:         newEventBus(),
		registry:    command.NewRegistry(),
		rdbDriver:   rdb.NewDriver(),
		stats:       &ReplicationStats{CommandsProcessed: map[string]int64{}},
		connectedCh: make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	if cfg.useDefaultExceptionListener {
		s.bus.addExceptionListener(loggerExceptionListener{logger: cfg.logger})
	}
	return s, nil
}

// Open starts the retrier loop and blocks until the first sync reaches
// the command stream, ctx is cancelled, the retrier stops, or six times
// the connect timeout elapses.
func (s *Session) Open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.runRetrier(runCtx)

	select {
	case <-s.connectedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.connectTimeout * 6):
		return &TransportError{Addr: s.cfg.masterAddr, Err: fmt.Errorf("timed out waiting for initial sync")}
	case <-s.doneCh:
		return &TransportError{Addr: s.cfg.masterAddr, Err: fmt.Errorf("session stopped before connecting")}
	}
}

// Close latches manual close, cancels the retrier, and waits (bounded
// by the connect timeout) for the connection to tear down.
func (s *Session) Close() error {
	if !atomic.CompareAndSwapInt32(&s.manualClose, 0, 1) {
		return nil
	}
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}

	select {
	case <-s.doneCh:
		return nil
	case <-time.After(s.cfg.connectTimeout):
		return &TransportError{Addr: s.cfg.masterAddr, Err: fmt.Errorf("close timed out")}
	}
}

func (s *Session) isManualClosed() bool {
	return atomic.LoadInt32(&s.manualClose) == 1
}

func (s *Session) notifyConnected() {
	s.connectOnce.Do(func() { close(s.connectedCh) })
}

// Stats returns a snapshot of replication statistics.
func (s *Session) Stats() ReplicationStats {
	return s.stats.snapshot()
}

func (s *Session) AddEventListener(l EventListener)         { s.bus.addEventListener(l) }
func (s *Session) RemoveEventListener(l EventListener)      { s.bus.removeEventListener(l) }
func (s *Session) AddExceptionListener(l ExceptionListener) { s.bus.addExceptionListener(l) }
func (s *Session) AddRawByteListener(l RawByteListener)     { s.bus.addRawByteListener(l) }
func (s *Session) RegisterCommandParser(name string, p command.Parser) {
	s.registry.Register(name, p)
}

func (s *Session) logger() Logger { return s.cfg.logger }

func (s *Session) addr() string { return s.cfg.masterAddr }

func (s *Session) localPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return 0
	}
	if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (s *Session) localAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(s.conn.LocalAddr().String())
	if err != nil {
		return s.conn.LocalAddr().String()
	}
	return host
}

func (s *Session) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) getStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) refreshDeadlines() {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return
	}
	if s.cfg.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.cfg.readTimeout))
	}
	if s.cfg.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.cfg.writeTimeout))
	}
}

// dial establishes the TCP (or TLS) connection and wires up the WireIO
// chain.
func (s *Session) dial(ctx context.Context) error {
	s.setStatus(Connecting)

	dialer := &net.Dialer{Timeout: s.cfg.connectTimeout}
	var conn net.Conn
	var err error
	if s.cfg.masterTLS != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", s.cfg.masterAddr, s.cfg.masterTLS)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", s.cfg.masterAddr)
	}
	if err != nil {
		return &TransportError{Addr: s.cfg.masterAddr, Err: err}
	}

	chain := wireio.NewChain(ctx, conn, wireio.Options{
		AsyncCachedBytes:        s.cfg.asyncCachedBytes,
		RateLimitBytesPerSecond: s.cfg.rateLimitBytesPerSecond,
		BufferSize:              s.cfg.bufferSize,
	})
	rawListeners := s.bus.rawByteListenerSnapshot()
	wireListeners := make([]wireio.RawByteListener, len(rawListeners))
	for i, l := range rawListeners {
		wireListeners[i] = wireio.RawByteListener(l)
	}
	chain.AttachRawByteListeners(wireListeners)

	s.mu.Lock()
	s.conn = conn
	s.chain = chain
	s.mu.Unlock()

	// An in-flight blocking read has no other way to observe ctx being
	// cancelled by Close; force it to fail immediately instead of
	// waiting out the read deadline.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.refreshDeadlines()
	s.setStatus(Connected)
	s.stats.recordConnected(s.cfg.masterAddr)
	if s.cfg.metrics != nil {
		s.cfg.metrics.RecordReconnection()
	}
	return nil
}

// teardown closes the connection in the order the retrier's close path
// requires: heartbeat first (so it never races a closed descriptor),
// then the socket. Each step is independently guarded. Waiting for the
// heartbeat to stop is bounded by the connect timeout.
func (s *Session) teardown() {
	if s.heartbeat != nil {
		hb := s.heartbeat
		stopped := make(chan struct{})
		go func() {
			hb.stop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(s.cfg.connectTimeout):
			s.logger().Info("heartbeat did not stop within connect timeout")
		}
		s.heartbeat = nil
	}

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.chain = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	s.setStatus(Disconnected)
	s.stats.recordDisconnected()
}

// loggerExceptionListener is the default listener installed when
// useDefaultExceptionListener is set: it reports faults through the
// configured Logger instead of silently dropping them.
type loggerExceptionListener struct{ logger Logger }

func (l loggerExceptionListener) OnException(err error) {
	l.logger.Error("replication exception", Field{"error", err})
}

func isRecoverableReply(reply string) bool {
	upper := strings.ToUpper(reply)
	return strings.Contains(upper, "NOMASTERLINK") || strings.Contains(upper, "LOADING")
}
