package redisreplica

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/replikit/redis-replicator/internal/command"
	"github.com/replikit/redis-replicator/internal/rdb"
	"github.com/replikit/redis-replicator/internal/resp"
)

// runSync drives PSYNC and, on success, the command-stream loop. It
// dispatches on the PSYNC reply's prefix: FULLRESYNC starts a fresh
// snapshot, CONTINUE resumes the existing stream, NOMASTERLINK/LOADING
// are transient faults worth a soft retry, and anything else falls back
// to the legacy SYNC command.
func (s *Session) runSync(ctx context.Context) error {
	offsetArg := "-1"
	if s.replOffset >= 0 {
		offsetArg = strconv.FormatInt(s.replOffset+1, 10)
	}
	if err := s.chain.WriteCommand("PSYNC", s.replID, offsetArg); err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}

	reply, err := s.chain.Resp().ReadNext()
	if err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	text := strings.TrimSpace(reply.String())

	switch {
	case strings.HasPrefix(text, "FULLRESYNC"):
		fields := strings.Fields(text)
		if len(fields) < 3 {
			return &ProtocolError{Message: "malformed FULLRESYNC reply", Data: []byte(text)}
		}
		id := fields[1]
		off, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return &ProtocolError{Message: "invalid FULLRESYNC offset", Data: []byte(fields[2])}
		}
		s.mu.Lock()
		s.replID, s.replOffset, s.currentDB = id, off, -1
		s.mu.Unlock()
		s.stats.recordSyncStart()
		if err := s.consumeSnapshot(); err != nil {
			return err
		}
		s.mode = modePSYNC

	case strings.HasPrefix(text, "CONTINUE"):
		fields := strings.Fields(text)
		if len(fields) >= 2 && fields[1] != "" {
			s.mu.Lock()
			s.replID = fields[1]
			s.mu.Unlock()
		}
		s.mode = modePSYNC

	case isRecoverableReply(text):
		s.mode = modeSyncLater
		return &RecoverableError{Err: fmt.Errorf("%s", text)}

	default:
		if err := s.chain.WriteCommand("SYNC"); err != nil {
			return &TransportError{Addr: s.addr(), Err: err}
		}
		s.mu.Lock()
		s.currentDB = -1
		s.mu.Unlock()
		s.stats.recordSyncStart()
		if err := s.consumeSnapshot(); err != nil {
			return err
		}
		s.mode = modeSync
	}

	s.stats.recordSyncComplete(s.replID, s.replOffset)

	if s.mode == modePSYNC && s.getStatus() == Connected {
		s.startHeartbeat(ctx)
	}

	return s.commandLoop(ctx)
}

// consumeSnapshot drives the RDB driver against the bulk payload that
// follows a FULLRESYNC or legacy SYNC reply.
func (s *Session) consumeSnapshot() error {
	handler := &sessionRDBHandler{session: s}
	if err := s.rdbDriver.Consume(s.chain.Resp(), s.cfg.discardRdbEvent, handler); err != nil {
		return &SyncFailureError{Phase: "rdb", Err: err}
	}
	return nil
}

type sessionRDBHandler struct {
	session *Session
	db      int
}

func (h *sessionRDBHandler) OnDatabase(index int) error {
	h.db = index
	return nil
}

func (h *sessionRDBHandler) OnAux(key, value []byte) error {
	if h.session.cfg.verbose {
		h.session.logger().Debug("rdb aux field", Field{"key", string(key)}, Field{"value", string(value)})
	}
	return nil
}

func (h *sessionRDBHandler) OnKey(key []byte, value interface{}, expiry *time.Time) error {
	h.session.bus.publish(Event{
		Kind:   EventRdbKey,
		DB:     h.db,
		Key:    key,
		Value:  value,
		Expiry: expiry,
	})
	return nil
}

func (h *sessionRDBHandler) OnEnd() error {
	return nil
}

func (s *Session) startHeartbeat(ctx context.Context) {
	s.heartbeat = newScheduler(s.cfg.heartbeatPeriod, func(tickCtx context.Context) {
		s.mu.RLock()
		offset := s.replOffset
		chain := s.chain
		s.mu.RUnlock()
		if chain == nil {
			return
		}
		// Best-effort: an I/O failure here is swallowed because the
		// reader will observe the same fault on its next read.
		_ = chain.WriteCommand("REPLCONF", "ACK", strconv.FormatInt(offset, 10))
	})
	s.heartbeat.start(ctx)
}

// commandLoop emits PreCommandSync, replays currentDB as a synthetic
// SELECT if needed, then reads top-level RESP frames until the
// connection fails or the session is closed.
func (s *Session) commandLoop(ctx context.Context) error {
	s.bus.publish(Event{Kind: EventPreCommandSync})
	s.notifyConnected()

	s.mu.RLock()
	db := s.currentDB
	s.mu.RUnlock()
	if db != -1 {
		s.emitCommand("SELECT", [][]byte{[]byte(strconv.Itoa(db))}, s.replOffset, s.replOffset)
	}

	for {
		select {
		case <-ctx.Done():
			return &CancelledError{Err: ctx.Err()}
		default:
		}

		s.refreshDeadlines()
		value, n, err := s.chain.Resp().ReadNextCounted()
		if err != nil {
			return &TransportError{Addr: s.addr(), Err: err}
		}
		s.stats.recordBytes(n)

		if value.Type != resp.Array || len(value.Array) == 0 {
			s.advanceOffset(n)
			continue
		}

		name := strings.ToUpper(value.Array[0].String())
		args := make([][]byte, len(value.Array)-1)
		for i, v := range value.Array[1:] {
			args[i] = v.Data
		}

		if !s.registry.Known(name) {
			s.logger().Info("unknown replication command, skipping", Field{"name", name})
			s.advanceOffset(n)
			continue
		}

		start := s.getOffset()
		end := start + n

		if name == "REPLCONF" && len(args) >= 2 && strings.EqualFold(string(args[0]), "GETACK") {
			offset := start
			s.advanceOffset(n)
			if s.mode == modePSYNC {
				go func() {
					_ = s.chain.WriteCommand("REPLCONF", "ACK", strconv.FormatInt(offset, 10))
				}()
			}
			continue
		}

		parsed, err := s.registry.Parse(name, args)
		if err != nil {
			s.logger().Error("command parse failed", Field{"name", name}, Field{"error", err})
			s.advanceOffset(n)
			continue
		}

		if sel, ok := parsed.Typed.(command.SelectCommand); ok {
			s.mu.Lock()
			s.currentDB = sel.DB
			s.mu.Unlock()
		}

		if s.commandAllowed(name) {
			s.bus.publish(Event{
				Kind:        EventCommand,
				CommandName: parsed.Name,
				Args:        parsed.Args,
				Typed:       parsed.Typed,
				OffsetStart: start,
				OffsetEnd:   end,
			})
			s.stats.recordCommand(name, end)
			if s.cfg.metrics != nil {
				s.cfg.metrics.RecordCommandProcessed(name, 0)
			}
		}
		s.advanceOffset(n)

		if s.cfg.verbose {
			s.logger().Debug("command replicated", Field{"name", name}, Field{"offset", end})
		}
	}
}

func (s *Session) commandAllowed(name string) bool {
	if len(s.cfg.commandFilters) == 0 {
		return true
	}
	_, ok := s.cfg.commandFilters[name]
	return ok
}

func (s *Session) emitCommand(name string, args [][]byte, start, end int64) {
	s.bus.publish(Event{
		Kind:        EventCommand,
		CommandName: name,
		Args:        args,
		OffsetStart: start,
		OffsetEnd:   end,
	})
}

func (s *Session) getOffset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.replOffset
}

func (s *Session) advanceOffset(n int64) {
	s.mu.Lock()
	s.replOffset += n
	s.mu.Unlock()
}

var _ rdb.Handler = (*sessionRDBHandler)(nil)
