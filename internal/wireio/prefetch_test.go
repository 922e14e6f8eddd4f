package wireio

import (
	"bytes"
	"io"
	"testing"
)

func TestPrefetchReaderReturnsAllBytesThenEOF(t *testing.T) {
	want := bytes.Repeat([]byte("redis-replication-stream-"), 500)
	pr := newPrefetchReader(bytes.NewReader(want), 64)

	got, err := io.ReadAll(pr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("got %d bytes, want %d bytes; mismatch", len(got), len(want))
	}
}

func TestPrefetchReaderPropagatesUnderlyingError(t *testing.T) {
	pr := newPrefetchReader(&erroringReader{}, 64)
	_, err := io.ReadAll(pr)
	if err == nil {
		t.Fatal("expected error from underlying reader")
	}
}

type erroringReader struct{ n int }

func (r *erroringReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		r.n++
		p[0] = 'x'
		return 1, nil
	}
	return 0, io.ErrClosedPipe
}
