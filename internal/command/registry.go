// Package command implements a registry: a mapping from a
// replication-stream command name to a parser that turns the raw RESP
// array into a typed command value. Names are split from arguments and
// upper-cased before dispatch, so lookups are case-insensitive the way
// Redis's own command matching is; REPLCONF GETACK is special-cased by
// the caller ahead of general dispatch, and the caller reads the
// selected database from SELECT's typed parse.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Parser turns a command's raw arguments into a typed value. Returning a
// nil value with a nil error is valid: it means "recognized, but carries
// no richer structure than its raw arguments."
type Parser func(args [][]byte) (interface{}, error)

// Parsed is what the registry hands back to the caller: the command name,
// its raw arguments (always present, so a listener that only wants raw
// bytes never has to care whether a typed parser ran), and the typed
// value produced by the registered Parser, if any.
type Parsed struct {
	Name  string
	Args  [][]byte
	Typed interface{}
}

// Registry maps upper-cased command names to parsers. A Registry always
// resolves every name: unregistered names fall back to a raw passthrough
// parser, so "unknown to the registry" and "unknown command" are
// different things — see Known.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
	known   map[string]struct{}
}

// NewRegistry returns a Registry pre-populated with parsers for the
// commands a Redis primary's replication stream commonly carries.
func NewRegistry() *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
		known:   make(map[string]struct{}),
	}
	registerBuiltins(r)
	return r
}

// Register installs a parser for name, replacing any previous
// registration. Passing a nil parser unregisters name, making it behave
// like any other unknown command (raw passthrough, but no longer
// considered "known" by Known).
func (r *Registry) Register(name string, p Parser) {
	name = strings.ToUpper(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		delete(r.parsers, name)
		delete(r.known, name)
		return
	}
	r.parsers[name] = p
	r.known[name] = struct{}{}
}

// Known reports whether name has an explicitly registered parser, as
// opposed to falling back to the raw passthrough.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.known[strings.ToUpper(name)]
	return ok
}

// Parse resolves name's parser (falling back to raw passthrough) and
// runs it over args.
func (r *Registry) Parse(name string, args [][]byte) (Parsed, error) {
	upper := strings.ToUpper(name)
	r.mu.RLock()
	p, ok := r.parsers[upper]
	r.mu.RUnlock()
	if !ok {
		return Parsed{Name: upper, Args: args}, nil
	}
	typed, err := p(args)
	if err != nil {
		return Parsed{}, fmt.Errorf("command: parse %s: %w", upper, err)
	}
	return Parsed{Name: upper, Args: args, Typed: typed}, nil
}

// SelectCommand is the typed form of SELECT <db>.
type SelectCommand struct{ DB int }

// SetCommand is the typed form of SET key value [EX sec|PX ms] [NX|XX].
type SetCommand struct {
	Key, Value []byte
	TTLSeconds int64 // 0 if no expiry given; PX is rounded down to whole seconds, so PX below 1000 also gives 0
	NX, XX     bool
}

// DelCommand is the typed form of DEL key [key ...].
type DelCommand struct{ Keys [][]byte }

// ExpireCommand is the typed form of EXPIRE/PEXPIRE key seconds.
type ExpireCommand struct {
	Key          []byte
	Milliseconds int64
}

// IncrByCommand is the typed form of INCRBY/DECRBY/INCR/DECR key [delta].
type IncrByCommand struct {
	Key   []byte
	Delta int64
}

// ListPushCommand is the typed form of LPUSH/RPUSH key value [value ...].
type ListPushCommand struct {
	Key    []byte
	Values [][]byte
}

// SetMembersCommand is the typed form of SADD/SREM key member [member ...].
type SetMembersCommand struct {
	Key     []byte
	Members [][]byte
}

// HashSetCommand is the typed form of HSET key field value [field value ...].
type HashSetCommand struct {
	Key    []byte
	Fields map[string][]byte
}

// HashDelCommand is the typed form of HDEL key field [field ...].
type HashDelCommand struct {
	Key    []byte
	Fields [][]byte
}

// ZAddCommand is the typed form of ZADD key score member [score member ...].
type ZAddCommand struct {
	Key     []byte
	Members map[string]float64
}

// EvalCommand is the typed form of EVAL/EVALSHA script|sha numkeys key... arg...
// It is parsed for visibility only; nothing in this module executes it.
type EvalCommand struct {
	Script  []byte
	NumKeys int
	Keys    [][]byte
	Args    [][]byte
}

func registerBuiltins(r *Registry) {
	r.Register("SELECT", func(args [][]byte) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("SELECT requires 1 argument, got %d", len(args))
		}
		db, err := strconv.Atoi(string(args[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid database number %q: %w", args[0], err)
		}
		return SelectCommand{DB: db}, nil
	})

	r.Register("PING", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("REPLCONF", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("MULTI", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("EXEC", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("DISCARD", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("FLUSHALL", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("FLUSHDB", func(args [][]byte) (interface{}, error) { return nil, nil })
	r.Register("PUBLISH", func(args [][]byte) (interface{}, error) { return nil, nil })

	r.Register("SET", func(args [][]byte) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("SET requires at least 2 arguments, got %d", len(args))
		}
		cmd := SetCommand{Key: args[0], Value: args[1]}
		for i := 2; i < len(args); i++ {
			switch strings.ToUpper(string(args[i])) {
			case "EX":
				i++
				if i >= len(args) {
					return nil, fmt.Errorf("SET EX missing seconds")
				}
				secs, err := strconv.ParseInt(string(args[i]), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid SET EX seconds: %w", err)
				}
				cmd.TTLSeconds = secs
			case "PX":
				i++
				if i >= len(args) {
					return nil, fmt.Errorf("SET PX missing milliseconds")
				}
				ms, err := strconv.ParseInt(string(args[i]), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid SET PX milliseconds: %w", err)
				}
				cmd.TTLSeconds = ms / 1000
			case "NX":
				cmd.NX = true
			case "XX":
				cmd.XX = true
			}
		}
		return cmd, nil
	})

	r.Register("GETSET", func(args [][]byte) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("GETSET requires 2 arguments, got %d", len(args))
		}
		return SetCommand{Key: args[0], Value: args[1]}, nil
	})

	r.Register("DEL", func(args [][]byte) (interface{}, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("DEL requires at least 1 argument")
		}
		return DelCommand{Keys: args}, nil
	})

	for _, name := range []string{"EXPIRE", "PEXPIRE"} {
		name := name
		r.Register(name, func(args [][]byte) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires 2 arguments, got %d", name, len(args))
			}
			n, err := strconv.ParseInt(string(args[1]), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", name, err)
			}
			if name == "EXPIRE" {
				n *= 1000
			}
			return ExpireCommand{Key: args[0], Milliseconds: n}, nil
		})
	}

	for _, spec := range []struct {
		name  string
		delta int64
		hasArg bool
	}{
		{"INCR", 1, false}, {"DECR", -1, false},
		{"INCRBY", 1, true}, {"DECRBY", -1, true},
	} {
		spec := spec
		r.Register(spec.name, func(args [][]byte) (interface{}, error) {
			if len(args) < 1 {
				return nil, fmt.Errorf("%s requires a key", spec.name)
			}
			delta := spec.delta
			if spec.hasArg {
				if len(args) < 2 {
					return nil, fmt.Errorf("%s requires a delta argument", spec.name)
				}
				n, err := strconv.ParseInt(string(args[1]), 10, 64)
				if err != nil {
					return nil, fmt.Errorf("invalid %s delta: %w", spec.name, err)
				}
				delta = n * spec.delta
			}
			return IncrByCommand{Key: args[0], Delta: delta}, nil
		})
	}

	r.Register("APPEND", func(args [][]byte) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("APPEND requires 2 arguments, got %d", len(args))
		}
		return SetCommand{Key: args[0], Value: args[1]}, nil
	})

	for _, name := range []string{"LPUSH", "RPUSH"} {
		name := name
		r.Register(name, func(args [][]byte) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a key and at least one value", name)
			}
			return ListPushCommand{Key: args[0], Values: args[1:]}, nil
		})
	}
	r.Register("LPOP", func(args [][]byte) (interface{}, error) { return passthroughKey(args, "LPOP") })
	r.Register("RPOP", func(args [][]byte) (interface{}, error) { return passthroughKey(args, "RPOP") })

	for _, name := range []string{"SADD", "SREM"} {
		name := name
		r.Register(name, func(args [][]byte) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires a key and at least one member", name)
			}
			return SetMembersCommand{Key: args[0], Members: args[1:]}, nil
		})
	}

	r.Register("HSET", func(args [][]byte) (interface{}, error) {
		if len(args) < 3 || len(args)%2 != 1 {
			return nil, fmt.Errorf("HSET requires key plus field/value pairs")
		}
		fields := make(map[string][]byte, (len(args)-1)/2)
		for i := 1; i+1 < len(args); i += 2 {
			fields[string(args[i])] = args[i+1]
		}
		return HashSetCommand{Key: args[0], Fields: fields}, nil
	})
	r.Register("HDEL", func(args [][]byte) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("HDEL requires a key and at least one field")
		}
		return HashDelCommand{Key: args[0], Fields: args[1:]}, nil
	})

	r.Register("ZADD", func(args [][]byte) (interface{}, error) {
		if len(args) < 3 || len(args)%2 != 1 {
			return nil, fmt.Errorf("ZADD requires key plus score/member pairs")
		}
		members := make(map[string]float64, (len(args)-1)/2)
		for i := 1; i+1 < len(args); i += 2 {
			score, err := strconv.ParseFloat(string(args[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid ZADD score: %w", err)
			}
			members[string(args[i+1])] = score
		}
		return ZAddCommand{Key: args[0], Members: members}, nil
	})
	r.Register("ZREM", func(args [][]byte) (interface{}, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("ZREM requires a key and at least one member")
		}
		return SetMembersCommand{Key: args[0], Members: args[1:]}, nil
	})

	for _, name := range []string{"EVAL", "EVALSHA"} {
		name := name
		r.Register(name, func(args [][]byte) (interface{}, error) {
			if len(args) < 2 {
				return nil, fmt.Errorf("%s requires script/sha and numkeys", name)
			}
			numKeys, err := strconv.Atoi(string(args[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid %s numkeys: %w", name, err)
			}
			if numKeys < 0 || 2+numKeys > len(args) {
				return nil, fmt.Errorf("%s numkeys %d out of range for %d arguments", name, numKeys, len(args))
			}
			return EvalCommand{
				Script:  args[0],
				NumKeys: numKeys,
				Keys:    args[2 : 2+numKeys],
				Args:    args[2+numKeys:],
			}, nil
		})
	}
}

func passthroughKey(args [][]byte, name string) (interface{}, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%s requires a key", name)
	}
	return nil, nil
}
