package redisreplica

import (
	"fmt"
	"strconv"
	"strings"
)

// runHandshake drives AUTH -> PING -> REPLCONF listening-port ->
// REPLCONF ip-address -> REPLCONF capa eof -> REPLCONF capa psync2 ->
// per-filter REPLCONF, in that order, the same negotiation sequence a
// real Redis replica performs before issuing PSYNC.
func (s *Session) runHandshake() error {
	if err := s.authenticate(); err != nil {
		return err
	}
	if err := s.ping(); err != nil {
		return err
	}
	if err := s.replconfListeningPort(); err != nil {
		return err
	}
	if err := s.replconfIPAddress(); err != nil {
		return err
	}
	if err := s.sendReplconf("capa", "eof"); err != nil {
		return err
	}
	if err := s.sendReplconf("capa", "psync2"); err != nil {
		return err
	}
	for _, filter := range s.cfg.replFilters {
		if err := s.applyFilter(filter); err != nil {
			return err
		}
	}
	return nil
}

func isFatalHandshakeReply(reply string) bool {
	upper := strings.ToUpper(reply)
	return strings.Contains(upper, "NOAUTH") ||
		strings.Contains(upper, "NOPERM") ||
		strings.Contains(strings.ToLower(reply), "operation not permitted")
}

func (s *Session) authenticate() error {
	if s.cfg.authPassword == "" {
		return nil
	}

	args := []string{"AUTH"}
	if s.cfg.authUser != "" {
		args = append(args, s.cfg.authUser)
	}
	args = append(args, s.cfg.authPassword)

	if err := s.chain.WriteCommand(args[0], args[1:]...); err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	reply, err := s.chain.Resp().ReadNext()
	if err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}

	text := reply.String()
	if isFatalHandshakeReply(text) {
		return &AuthError{Reply: text}
	}
	if reply.IsError() && !strings.Contains(strings.ToLower(text), "no password") {
		return &AuthError{Reply: text}
	}
	return nil
}

func (s *Session) ping() error {
	if err := s.chain.WriteCommand("PING"); err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	reply, err := s.chain.Resp().ReadNext()
	if err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}

	text := reply.String()
	if isFatalHandshakeReply(text) {
		return &AuthError{Reply: text}
	}
	if !strings.EqualFold(text, "PONG") {
		s.logger().Info("unexpected PING reply, proceeding", Field{"reply", text})
	}
	return nil
}

func (s *Session) replconfListeningPort() error {
	port := s.cfg.slavePort
	if port == 0 {
		port = s.localPort()
	}
	return s.sendReplconf("listening-port", strconv.Itoa(port))
}

func (s *Session) replconfIPAddress() error {
	return s.sendReplconf("ip-address", s.localAddr())
}

// sendReplconf sends REPLCONF <key> <value>. A non-OK reply just means
// the primary doesn't support that capability; it isn't fatal.
func (s *Session) sendReplconf(key, value string) error {
	if err := s.chain.WriteCommand("REPLCONF", key, value); err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	reply, err := s.chain.Resp().ReadNext()
	if err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	if reply.IsError() || !strings.EqualFold(reply.String(), "OK") {
		s.logger().Info("REPLCONF not acknowledged", Field{"key", key}, Field{"reply", reply.String()})
	}
	return nil
}

func (s *Session) applyFilter(f ReplFilter) error {
	if len(f.Command) == 0 {
		return nil
	}
	if err := s.chain.WriteCommand(f.Command[0], f.Command[1:]...); err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	reply, err := s.chain.Resp().ReadNext()
	if err != nil {
		return &TransportError{Addr: s.addr(), Err: err}
	}
	if reply.IsError() || !strings.EqualFold(reply.String(), "OK") {
		s.logger().Info("replication filter not acknowledged", Field{"command", fmt.Sprint(f.Command)})
		return nil
	}
	if f.Listener != nil {
		s.bus.addEventListener(f.Listener)
	}
	return nil
}
