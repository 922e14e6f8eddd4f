// Package redisreplica implements a Redis replication client: it
// impersonates a replica against a Redis primary, negotiates the
// replication handshake, consumes the initial RDB snapshot, and then
// streams the command log that follows, surfacing both as a sequence of
// typed events to registered listeners.
//
// Basic usage:
//
//	session, err := redisreplica.New(
//		redisreplica.WithMaster("localhost:6379"),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.AddEventListener(myListener)
//
//	if err := session.Open(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//
// The library does not store, index, or re-serve the replicated data —
// that is left entirely to the event listeners a caller registers. It
// never acts as a primary and never writes commands back into Redis.
package redisreplica
