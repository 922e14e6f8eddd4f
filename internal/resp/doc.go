// Package resp implements the Redis Serialization Protocol (RESP) used
// during replication: simple strings, errors, integers, bulk strings and
// arrays, plus the streaming hooks the replication handshake needs (bulk
// payloads that must not be buffered in memory, and a byte-accounting
// variant used to track the replication offset).
package resp
