package redisreplica

import "time"

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	// EventPreCommandSync marks the start of the command stream, emitted
	// exactly once per successful sync entry, after any RDB events.
	EventPreCommandSync EventKind = iota
	// EventPostCommandSync marks an orderly exit from the command loop.
	// The command loop has no orderly exit (it ends only on a transport
	// error or on Close), so a Session never emits this kind.
	EventPostCommandSync
	// EventRdbKey carries one decoded key from the snapshot phase.
	EventRdbKey
	// EventCommand carries one command from the replication stream.
	EventCommand
)

func (k EventKind) String() string {
	switch k {
	case EventPreCommandSync:
		return "PreCommandSync"
	case EventPostCommandSync:
		return "PostCommandSync"
	case EventRdbKey:
		return "RdbKey"
	case EventCommand:
		return "Command"
	default:
		return "Unknown"
	}
}

// Event is the single tagged type surfaced to listeners. Only the fields
// relevant to Kind are populated; the rest hold zero values.
type Event struct {
	Kind EventKind

	// Populated for EventRdbKey.
	DB     int
	Key    []byte
	Value  interface{} // one of rdb.String, rdb.List, rdb.Set, rdb.Hash, or nil
	Expiry *time.Time

	// Populated for EventCommand.
	CommandName string
	Args        [][]byte
	Typed       interface{} // the CommandRegistry's typed parse, if any
	OffsetStart int64
	OffsetEnd   int64
}

// EventListener receives Event values in wire order, invoked
// synchronously from the reader goroutine.
type EventListener interface {
	OnEvent(Event)
}

// ExceptionListener receives non-recoverable errors the reader surfaces
// before the retrier acts on them.
type ExceptionListener interface {
	OnException(error)
}

// RawByteListener observes every byte read from the socket, before RESP
// framing consumes it.
type RawByteListener func(data []byte)

// ReplFilter is a capability advertisement sent during the handshake: a
// REPLCONF-style command whose acceptance authorizes an optional
// listener to receive events tied to that capability.
type ReplFilter struct {
	Command  []string
	Listener EventListener
}
