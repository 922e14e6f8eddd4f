package redisreplica

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// Logger interface for custom logging implementations
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordSyncDuration records the time taken for synchronization
	RecordSyncDuration(duration time.Duration)

	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordNetworkBytes records network bytes transferred
	RecordNetworkBytes(bytes int64)

	// RecordReconnection records a reconnection event
	RecordReconnection()

	// RecordError records an error event
	RecordError(errorType string)
}

// ReplicationStats provides detailed replication statistics
type ReplicationStats struct {
	mu sync.RWMutex

	Connected      bool
	MasterAddr     string
	ConnectedAt    time.Time
	DisconnectedAt time.Time
	ReconnectCount int64

	ReplID            string
	ReplicationOffset int64

	InitialSyncStart     time.Time
	InitialSyncEnd       time.Time
	InitialSyncCompleted bool

	BytesReceived     int64
	CommandsProcessed map[string]int64
}

func (s *ReplicationStats) recordConnected(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connected = true
	s.MasterAddr = addr
	s.ConnectedAt = time.Now()
	s.ReconnectCount++
}

func (s *ReplicationStats) recordDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Connected = false
	s.DisconnectedAt = time.Now()
}

func (s *ReplicationStats) recordSyncStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InitialSyncStart = time.Now()
	s.InitialSyncCompleted = false
}

func (s *ReplicationStats) recordSyncComplete(replID string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InitialSyncEnd = time.Now()
	s.InitialSyncCompleted = true
	s.ReplID = replID
	s.ReplicationOffset = offset
}

func (s *ReplicationStats) recordCommand(name string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CommandsProcessed[name]++
	s.ReplicationOffset = offset
}

func (s *ReplicationStats) recordBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BytesReceived += n
}

// snapshot returns a copy safe to hand to callers without exposing the
// live mutex.
func (s *ReplicationStats) snapshot() ReplicationStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[string]int64, len(s.CommandsProcessed))
	for k, v := range s.CommandsProcessed {
		cp[k] = v
	}
	return ReplicationStats{
		Connected:            s.Connected,
		MasterAddr:           s.MasterAddr,
		ConnectedAt:          s.ConnectedAt,
		DisconnectedAt:       s.DisconnectedAt,
		ReconnectCount:       s.ReconnectCount,
		ReplID:               s.ReplID,
		ReplicationOffset:    s.ReplicationOffset,
		InitialSyncStart:     s.InitialSyncStart,
		InitialSyncEnd:       s.InitialSyncEnd,
		InitialSyncCompleted: s.InitialSyncCompleted,
		BytesReceived:        s.BytesReceived,
		CommandsProcessed:    cp,
	}
}

// GetReplicationOffset returns the current replication offset (thread-safe)
func (s *ReplicationStats) GetReplicationOffset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ReplicationOffset
}

// GetCommandCount returns the count for a specific command (thread-safe)
func (s *ReplicationStats) GetCommandCount(cmd string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.CommandsProcessed[cmd]
}

// defaultLogger is a simple logger implementation using the standard log package
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, fields ...Field) {
	l.logWithFields("DEBUG", msg, fields...)
}

func (l *defaultLogger) Info(msg string, fields ...Field) {
	l.logWithFields("INFO", msg, fields...)
}

func (l *defaultLogger) Error(msg string, fields ...Field) {
	l.logWithFields("ERROR", msg, fields...)
}

func (l *defaultLogger) logWithFields(level, msg string, fields ...Field) {
	logMsg := level + ": " + msg
	for _, field := range fields {
		logMsg += " " + field.Key + "=" + formatValue(field.Value)
	}
	log.Println(logMsg)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprintf("%v", val)
	}
}
