// Package wireio assembles the reader/writer stack a replication session
// runs its socket through: an optional async read-ahead buffer, an
// optional token-bucket rate limiter, a raw-byte tap for listeners that
// want to see every byte before it's framed, and finally the buffered
// RESP codec.
//
// The layering (async read-ahead -> rate limiter -> raw-byte tap ->
// RESP codec) is expressed as plain io.Reader/io.Writer composition, so
// any stage can be omitted by simply not wrapping the next one.
package wireio
