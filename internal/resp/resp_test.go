package resp_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/replikit/redis-replicator/internal/resp"
)

func TestReaderDecodesScalarTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected resp.Value
	}{
		{
			name:     "simple string",
			input:    "+OK\r\n",
			expected: resp.Value{Type: resp.SimpleString, Data: []byte("OK")},
		},
		{
			name:     "error",
			input:    "-ERR unknown command\r\n",
			expected: resp.Value{Type: resp.Error, Data: []byte("ERR unknown command")},
		},
		{
			name:     "integer",
			input:    ":42\r\n",
			expected: resp.Value{Type: resp.Integer, Integer: 42},
		},
		{
			name:     "bulk string",
			input:    "$5\r\nhello\r\n",
			expected: resp.Value{Type: resp.BulkString, Data: []byte("hello")},
		},
		{
			name:     "null bulk string",
			input:    "$-1\r\n",
			expected: resp.Value{Type: resp.BulkString, IsNull: true},
		},
		{
			name:     "empty bulk string",
			input:    "$0\r\n\r\n",
			expected: resp.Value{Type: resp.BulkString, Data: []byte("")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resp.NewReader(strings.NewReader(tt.input))
			v, err := r.ReadNext()
			if err != nil {
				t.Fatalf("ReadNext() error = %v", err)
			}
			if v.Type != tt.expected.Type {
				t.Errorf("Type = %v, want %v", v.Type, tt.expected.Type)
			}
			if !bytes.Equal(v.Data, tt.expected.Data) {
				t.Errorf("Data = %v, want %v", v.Data, tt.expected.Data)
			}
			if v.Integer != tt.expected.Integer {
				t.Errorf("Integer = %v, want %v", v.Integer, tt.expected.Integer)
			}
			if v.IsNull != tt.expected.IsNull {
				t.Errorf("IsNull = %v, want %v", v.IsNull, tt.expected.IsNull)
			}
		})
	}
}

func TestReaderDecodesArray(t *testing.T) {
	input := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"
	r := resp.NewReader(strings.NewReader(input))

	v, err := r.ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() error = %v", err)
	}
	if v.Type != resp.Array || len(v.Array) != 3 {
		t.Fatalf("got type=%v len=%d, want array of 3", v.Type, len(v.Array))
	}
	for i, want := range []string{"SET", "key", "value"} {
		if got := string(v.Array[i].Data); got != want {
			t.Errorf("Array[%d] = %q, want %q", i, got, want)
		}
	}
}

func TestReadNextCountedReportsExactWireLength(t *testing.T) {
	// *3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n is 27 bytes on the wire.
	input := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"
	r := resp.NewReader(strings.NewReader(input))

	_, n, err := r.ReadNextCounted()
	if err != nil {
		t.Fatalf("ReadNextCounted() error = %v", err)
	}
	if want := int64(len(input)); n != want {
		t.Errorf("counted length = %d, want %d", n, want)
	}
}

func TestSkipThenReadNext(t *testing.T) {
	tests := []struct {
		name string
		skip string
	}{
		{"bulk string", "$5\r\nhello\r\n"},
		{"empty bulk string", "$0\r\n\r\n"},
		{"null bulk string", "$-1\r\n"},
		{"array", "*2\r\n$1\r\na\r\n$1\r\nb\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := resp.NewReader(strings.NewReader(tt.skip + "+OK\r\n"))
			if err := r.Skip(); err != nil {
				t.Fatalf("Skip() error = %v", err)
			}
			v, err := r.ReadNext()
			if err != nil {
				t.Fatalf("ReadNext() after Skip() error = %v", err)
			}
			if v.Type != resp.SimpleString || string(v.Data) != "OK" {
				t.Errorf("got %v, want simple string OK", v)
			}
		})
	}
}

func TestWriterRoundTripsValues(t *testing.T) {
	var buf bytes.Buffer
	w := resp.NewWriter(&buf)

	if err := w.WriteCommand("SET", "key", "value"); err != nil {
		t.Fatalf("WriteCommand() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := "*3\r\n$3\r\nSET\r\n$3\r\nkey\r\n$5\r\nvalue\r\n"
	if buf.String() != want {
		t.Errorf("WriteCommand() = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	r := resp.NewReader(strings.NewReader(want))
	v, err := r.ReadNext()
	if err != nil {
		t.Fatalf("round-trip ReadNext() error = %v", err)
	}
	if err := w.WriteValue(v); err != nil {
		t.Fatalf("round-trip WriteValue() error = %v", err)
	}
	w.Flush()
	if buf.String() != want {
		t.Errorf("encode(decode(x)) = %q, want %q", buf.String(), want)
	}
}

func BenchmarkReaderSimpleString(b *testing.B) {
	input := "+OK\r\n"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := resp.NewReader(strings.NewReader(input))
		if _, err := r.ReadNext(); err != nil {
			b.Fatal(err)
		}
	}
}
