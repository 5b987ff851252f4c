package limiter

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

type staticLimiter struct {
	downstream *rate.Limiter
}

// NewStaticLimiter constructs a Limiter with a fixed (static) download rate
// cap.
func NewStaticLimiter(l Limits) Limiter {
	var downstreamBucket *rate.Limiter

	if l.DownloadKb > 0 {
		downstreamBucket = rate.NewLimiter(rate.Limit(toByteRate(l.DownloadKb)), int(toByteRate(l.DownloadKb)))
	}

	return staticLimiter{
		downstream: downstreamBucket,
	}
}

func (l staticLimiter) Downstream(r io.Reader) io.Reader {
	return l.limitReader(r, l.downstream)
}

func (l staticLimiter) DownstreamWriter(w io.Writer) io.Writer {
	return l.limitWriter(w, l.downstream)
}

func (l staticLimiter) limitReader(r io.Reader, b *rate.Limiter) io.Reader {
	if b == nil {
		return r
	}
	return &rateLimitedReader{r, b}
}

type rateLimitedReader struct {
	reader io.Reader
	bucket *rate.Limiter
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if err := consumeTokens(n, r.bucket); err != nil {
		return n, err
	}
	return n, err
}

func (l staticLimiter) limitWriter(w io.Writer, b *rate.Limiter) io.Writer {
	if b == nil {
		return w
	}
	return &rateLimitedWriter{w, b}
}

type rateLimitedWriter struct {
	writer io.Writer
	bucket *rate.Limiter
}

func (w *rateLimitedWriter) Write(buf []byte) (int, error) {
	if err := consumeTokens(len(buf), w.bucket); err != nil {
		return 0, err
	}
	return w.writer.Write(buf)
}

func consumeTokens(tokens int, bucket *rate.Limiter) error {
	// bucket allows waiting for at most Burst() tokens at once
	maxWait := bucket.Burst()
	for tokens > maxWait {
		if err := bucket.WaitN(context.Background(), maxWait); err != nil {
			return err
		}
		tokens -= maxWait
	}
	return bucket.WaitN(context.Background(), tokens)
}

func toByteRate(val int) float64 {
	return float64(val) * 1024.
}
