package rdb_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/replikit/redis-replicator/internal/rdb"
	"github.com/replikit/redis-replicator/internal/resp"
)

type recordingHandler struct {
	databases []int
	aux       map[string]string
	keys      map[string]interface{}
	ended     bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{aux: map[string]string{}, keys: map[string]interface{}{}}
}

func (h *recordingHandler) OnDatabase(index int) error {
	h.databases = append(h.databases, index)
	return nil
}
func (h *recordingHandler) OnAux(key, value []byte) error {
	h.aux[string(key)] = string(value)
	return nil
}
func (h *recordingHandler) OnKey(key []byte, value interface{}, expiry *time.Time) error {
	h.keys[string(key)] = value
	return nil
}
func (h *recordingHandler) OnEnd() error {
	h.ended = true
	return nil
}

// tinyRDB builds a minimal, hand-encoded RDB stream: one aux field, a
// SELECT to db 0, a single string key, and the EOF opcode plus an
// 8-byte (zeroed) checksum.
func tinyRDB() []byte {
	var b []byte
	b = append(b, []byte("REDIS0011")...)
	b = append(b, 0xFA, 0x09) // aux, 6-bit length 9
	b = append(b, []byte("redis-ver")...)
	b = append(b, 0x05)
	b = append(b, []byte("7.0.0")...)
	b = append(b, 0xFE, 0x00) // select db 0
	b = append(b, 0x00)       // value type: string
	b = append(b, 0x03)
	b = append(b, []byte("foo")...)
	b = append(b, 0x03)
	b = append(b, []byte("bar")...)
	b = append(b, 0xFF)             // EOF
	b = append(b, make([]byte, 8)...) // checksum
	return b
}

func TestParserDecodesAuxSelectAndStringKey(t *testing.T) {
	h := newRecordingHandler()
	p := rdb.NewParser(bytes.NewReader(tinyRDB()), h)

	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !h.ended {
		t.Error("OnEnd was never called")
	}
	if got := h.aux["redis-ver"]; got != "7.0.0" {
		t.Errorf("aux redis-ver = %q, want 7.0.0", got)
	}
	if len(h.databases) != 1 || h.databases[0] != 0 {
		t.Errorf("databases = %v, want [0]", h.databases)
	}
	v, ok := h.keys["foo"].(rdb.String)
	if !ok {
		t.Fatalf("key foo has type %T, want rdb.String", h.keys["foo"])
	}
	if string(v) != "bar" {
		t.Errorf("key foo = %q, want bar", v)
	}
}

func TestDriverConsumeFixedLengthParsesPayload(t *testing.T) {
	payload := tinyRDB()
	frame := "$" + itoa(len(payload)) + "\r\n" + string(payload)
	rr := resp.NewReader(strings.NewReader(frame))

	h := newRecordingHandler()
	if err := rdb.NewDriver().Consume(rr, false, h); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !h.ended {
		t.Error("OnEnd was never called")
	}
	if len(h.keys) != 1 {
		t.Errorf("keys = %v, want 1 entry", h.keys)
	}
}

func TestDriverConsumeFixedLengthDiscardSkipsWithoutDecoding(t *testing.T) {
	payload := tinyRDB()
	frame := "$" + itoa(len(payload)) + "\r\n" + string(payload) + "+OK\r\n"
	rr := resp.NewReader(strings.NewReader(frame))

	h := newRecordingHandler()
	if err := rdb.NewDriver().Consume(rr, true, h); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if h.ended || len(h.keys) != 0 {
		t.Errorf("discard mode must not invoke the handler, got ended=%v keys=%v", h.ended, h.keys)
	}

	v, err := rr.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() after discard error = %v", err)
	}
	if v.Type != resp.SimpleString || string(v.Data) != "OK" {
		t.Errorf("stream desynced after discard: got %v", v)
	}
}

func TestDriverConsumeDiskLessSkipsUncountedTrailer(t *testing.T) {
	payload := tinyRDB()
	marker := strings.Repeat("9", 40)
	frame := "$EOF:" + marker + "\r\n" + string(payload) + marker + "+PING\r\n"
	rr := resp.NewReader(strings.NewReader(frame))

	h := newRecordingHandler()
	if err := rdb.NewDriver().Consume(rr, false, h); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if !h.ended || len(h.keys) != 1 {
		t.Fatalf("expected decoded payload, got ended=%v keys=%v", h.ended, h.keys)
	}

	v, err := rr.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() after disk-less trailer error = %v", err)
	}
	if v.Type != resp.SimpleString || string(v.Data) != "PING" {
		t.Errorf("stream desynced after disk-less trailer: got %v", v)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
