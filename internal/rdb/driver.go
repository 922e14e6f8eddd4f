package rdb

import (
	"bufio"
	"io"
	"time"

	"github.com/replikit/redis-replicator/internal/resp"
)

// Driver reads the bulk-string body of a FULLRESYNC reply and either
// decodes it into Handler callbacks or discards it untouched, depending
// on whether the caller cares about the snapshot's contents.
type Driver struct{}

// disklessTrailerLen is the size of the delimiter a primary sends after
// a disk-less RDB stream.
const disklessTrailerLen = 40

// NewDriver returns a ready-to-use Driver. It carries no state of its
// own; a value receiver would do just as well, but a type gives callers
// something to hang future options off of.
func NewDriver() *Driver { return &Driver{} }

// Consume reads the next value from rr, which must be the bulk-string
// header of an RDB payload, and drives it to completion. When discard is
// true, a fixed-length payload is skipped byte-for-byte without ever
// being parsed; a disk-less payload still has to be walked structurally
// (there is no length to skip to), but its keys are never handed to
// handler. A payload is disk-less when it is framed as "$EOF:<marker>"
// or announced with a length of -1; either way the 40-byte delimiter
// that follows the RDB stream is skipped after parsing.
func (d *Driver) Consume(rr *resp.Reader, discard bool, handler Handler) error {
	return rr.ReadBulkStream(func(header resp.BulkStreamHeader, br *bufio.Reader) error {
		if header.EOFMarker != nil || header.Length == -1 {
			h := handler
			if discard {
				h = discardHandler{}
			}
			if err := NewParser(br, h).Parse(); err != nil {
				return err
			}
			trailer := len(header.EOFMarker)
			if header.EOFMarker == nil {
				trailer = disklessTrailerLen
			}
			// The delimiter is a sync artifact, not part of the RDB
			// format or the replication command stream — skip it
			// without counting it toward any offset.
			return rr.SkipRaw(trailer)
		}

		if discard {
			_, err := io.CopyN(io.Discard, br, header.Length)
			return err
		}
		return NewParser(br, handler).Parse()
	})
}

type discardHandler struct{}

func (discardHandler) OnDatabase(int) error                          { return nil }
func (discardHandler) OnAux(key, value []byte) error                 { return nil }
func (discardHandler) OnKey(key []byte, v interface{}, e *time.Time) error { return nil }
func (discardHandler) OnEnd() error                                  { return nil }
