package wireio

import (
	"context"
	"io"
	"sync"

	"github.com/replikit/redis-replicator/internal/resp"
)

// Options configures the layers Chain assembles on top of a raw
// connection. Zero values disable the optional layers.
type Options struct {
	// AsyncCachedBytes, if > 0, inserts a background read-ahead buffer
	// of roughly this many bytes between the connection and the rest of
	// the chain.
	AsyncCachedBytes int
	// RateLimitBytesPerSecond, if > 0, throttles reads to this budget.
	RateLimitBytesPerSecond int
	// BufferSize sizes the bufio.Reader feeding the RESP decoder.
	BufferSize int
}

// Chain composes the read side of a replication connection (raw conn ->
// optional prefetch -> optional rate limit -> raw-byte tap -> resp.Reader)
// and guards the write side with a single mutex, so the heartbeat
// goroutine and the reader's own GETACK replies never interleave a
// partial frame on the wire.
type Chain struct {
	tap    *tapReader
	reader *resp.Reader

	writeMu sync.Mutex
	writer  *resp.Writer
}

// NewChain builds a Chain over conn using opts, writing handshake and
// heartbeat frames back over the same conn.
func NewChain(ctx context.Context, conn io.ReadWriter, opts Options) *Chain {
	var r io.Reader = conn

	if opts.AsyncCachedBytes > 0 {
		r = newPrefetchReader(r, opts.AsyncCachedBytes)
	}
	if opts.RateLimitBytesPerSecond > 0 {
		r = newRateLimitedReader(ctx, r, opts.RateLimitBytesPerSecond)
	}

	tap := newTapReader(r)

	return &Chain{
		tap:    tap,
		reader: resp.NewReaderSize(tap, opts.BufferSize),
		writer: resp.NewWriter(conn),
	}
}

// AttachRawByteListeners registers listeners to observe every byte read
// off the wire ahead of RESP framing.
func (c *Chain) AttachRawByteListeners(listeners []RawByteListener) {
	c.tap.attach(listeners)
}

// Resp returns the chain's RESP reader, for callers (the RDB driver, the
// sync loop) that need to decode values or track byte-exact offsets.
func (c *Chain) Resp() *resp.Reader {
	return c.reader
}

// SkipRaw discards n bytes without any RESP framing and without it
// counting toward anything the caller tracks as replication offset — the
// disk-less RDB sync trailer's exact use case.
func (c *Chain) SkipRaw(n int) error {
	return c.reader.SkipRaw(n)
}

// SkipCounted discards the next RESP value and returns the number of
// wire bytes it occupied, so a caller that has no use for the value
// itself can still advance its replication offset correctly.
func (c *Chain) SkipCounted() (int64, error) {
	_, n, err := c.reader.ReadNextCounted()
	return n, err
}

// WriteCommand sends a RESP command array and flushes it, holding the
// write mutex for the duration so a concurrent heartbeat tick can never
// interleave with it.
func (c *Chain) WriteCommand(cmd string, args ...string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.WriteCommandFlush(cmd, args...)
}
