package wireio

import (
	"io"
	"sync"
)

// RawByteListener observes every byte read off the wire before it is
// framed into RESP values.
type RawByteListener func(data []byte)

// tapReader fans out each Read's bytes to a set of listeners, then
// returns them to the caller unmodified.
type tapReader struct {
	src io.Reader

	mu        sync.RWMutex
	listeners []RawByteListener
}

func newTapReader(src io.Reader) *tapReader {
	return &tapReader{src: src}
}

func (t *tapReader) Read(p []byte) (int, error) {
	n, err := t.src.Read(p)
	if n > 0 {
		t.mu.RLock()
		listeners := t.listeners
		t.mu.RUnlock()
		if len(listeners) > 0 {
			chunk := append([]byte(nil), p[:n]...)
			for _, l := range listeners {
				l(chunk)
			}
		}
	}
	return n, err
}

func (t *tapReader) attach(listeners []RawByteListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(append([]RawByteListener(nil), t.listeners...), listeners...)
}
