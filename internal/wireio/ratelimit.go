package wireio

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// rateLimitedReader throttles reads from src to a token-bucket budget of
// bytesPerSecond using golang.org/x/time/rate rather than a hand-rolled
// sleep loop — see DESIGN.md for why this is the module's one dependency
// beyond the standard library.
type rateLimitedReader struct {
	ctx     context.Context
	src     io.Reader
	limiter *rate.Limiter
}

func newRateLimitedReader(ctx context.Context, src io.Reader, bytesPerSecond int) *rateLimitedReader {
	return &rateLimitedReader{
		ctx:     ctx,
		src:     src,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
	}
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	// Cap each read to the limiter's burst so WaitN never blocks on a
	// reservation larger than the bucket can ever hold.
	if burst := r.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := r.src.Read(p)
	if n > 0 {
		if werr := r.limiter.WaitN(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
