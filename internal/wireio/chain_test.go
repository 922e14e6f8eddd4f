package wireio_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/replikit/redis-replicator/internal/wireio"
)

type loopbackConn struct {
	*strings.Reader
	written *strings.Builder
	mu      sync.Mutex
}

func (c *loopbackConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(p)
}

func newLoopback(input string) *loopbackConn {
	return &loopbackConn{Reader: strings.NewReader(input), written: &strings.Builder{}}
}

func TestChainRawByteListenersObserveWireBytes(t *testing.T) {
	conn := newLoopback("+OK\r\n")
	chain := wireio.NewChain(context.Background(), conn, wireio.Options{})

	var mu sync.Mutex
	var seen []byte
	chain.AttachRawByteListeners([]wireio.RawByteListener{
		func(data []byte) {
			mu.Lock()
			seen = append(seen, data...)
			mu.Unlock()
		},
	})

	v, err := chain.Resp().ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() error = %v", err)
	}
	if string(v.Data) != "OK" {
		t.Errorf("got %q, want OK", v.Data)
	}

	mu.Lock()
	defer mu.Unlock()
	if string(seen) != "+OK\r\n" {
		t.Errorf("raw byte listener saw %q, want %q", seen, "+OK\r\n")
	}
}

func TestChainWriteCommandSerializesUnderMutex(t *testing.T) {
	conn := newLoopback("")
	chain := wireio.NewChain(context.Background(), conn, wireio.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := chain.WriteCommand("REPLCONF", "ACK", "0"); err != nil {
				t.Errorf("WriteCommand() error = %v", err)
			}
		}()
	}
	wg.Wait()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	want := "*3\r\n$8\r\nREPLCONF\r\n$3\r\nACK\r\n$1\r\n0\r\n"
	got := conn.written.String()
	if len(got)%len(want) != 0 || len(got) == 0 {
		t.Fatalf("written output length %d not a multiple of one frame (%d)", len(got), len(want))
	}
	for i := 0; i < len(got); i += len(want) {
		if got[i:i+len(want)] != want {
			t.Fatalf("frame at offset %d = %q, want %q (interleaved write)", i, got[i:i+len(want)], want)
		}
	}
}

func TestChainSkipRawThenReadNext(t *testing.T) {
	marker := strings.Repeat("x", 40)
	conn := newLoopback(marker + "+OK\r\n")
	chain := wireio.NewChain(context.Background(), conn, wireio.Options{})

	if err := chain.SkipRaw(40); err != nil {
		t.Fatalf("SkipRaw() error = %v", err)
	}
	v, err := chain.Resp().ReadNext()
	if err != nil {
		t.Fatalf("ReadNext() error = %v", err)
	}
	if string(v.Data) != "OK" {
		t.Errorf("got %q, want OK", v.Data)
	}
}

func TestChainSkipCountedReportsWireLength(t *testing.T) {
	conn := newLoopback("*1\r\n$4\r\nPING\r\n")
	chain := wireio.NewChain(context.Background(), conn, wireio.Options{})

	n, err := chain.SkipCounted()
	if err != nil {
		t.Fatalf("SkipCounted() error = %v", err)
	}
	if want := int64(len("*1\r\n$4\r\nPING\r\n")); n != want {
		t.Errorf("SkipCounted() = %d, want %d", n, want)
	}
}
