// Package rdb decodes the RDB snapshot a Redis primary sends as the body
// of a FULLRESYNC. It streams key/value pairs to a Handler as it decodes
// them rather than building an in-memory keyspace, and it can discard a
// snapshot's bytes entirely without decoding when a caller only wants the
// command stream that follows.
//
// The opcode table and length/string encodings follow the RDB format's
// standard layout: a magic header, a stream of typed opcodes, and a
// trailing checksum, with LZF-compressed strings decoded inline.
package rdb
