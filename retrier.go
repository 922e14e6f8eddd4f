package redisreplica

import (
	"context"
	"errors"
	"time"
)

// runRetrier is the outer loop: dial, handshake, sync, and on any
// failure, reconnect preserving (replId, replOffset) — unless the
// failure is fatal (auth) or the session was closed manually. Expressed
// as a plain loop with typed-error classification rather than a
// callback hierarchy.
func (s *Session) runRetrier(ctx context.Context) {
	defer close(s.doneCh)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if s.isManualClosed() {
			return
		}
		select {
		case <-ctx.Done():
			s.teardown()
			return
		default:
		}

		err := s.attempt(ctx)
		s.teardown()

		var cancelled *CancelledError
		if errors.As(err, &cancelled) || errors.Is(err, ErrManualClose) {
			return
		}

		if s.isManualClosed() {
			return
		}

		var recoverable *RecoverableError
		if errors.As(err, &recoverable) || errors.Is(err, ErrRecoverable) {
			// Soft retry: no error log, offset pair preserved.
			s.sleep(ctx, backoff)
			continue
		}

		var authErr *AuthError
		if errors.As(err, &authErr) {
			s.logger().Error("authentication failed, giving up", Field{"error", err})
			s.bus.publishException(err)
			return
		}

		s.logger().Error("replication attempt failed, reconnecting", Field{"error", err})
		s.bus.publishException(err)
		if s.cfg.metrics != nil {
			s.cfg.metrics.RecordError("replication")
		}

		s.sleep(ctx, backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Session) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// attempt performs one full dial -> handshake -> sync cycle. Its error,
// if any, is classified by runRetrier to decide the reconnect policy.
func (s *Session) attempt(ctx context.Context) error {
	if err := s.dial(ctx); err != nil {
		return err
	}
	if err := s.runHandshake(); err != nil {
		return err
	}
	return s.runSync(ctx)
}
