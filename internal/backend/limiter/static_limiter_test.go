package limiter

import (
	"bytes"
	"io"
	"testing"

	"github.com/yabinmeng/opscs3restore/internal/test"
	"golang.org/x/time/rate"
)

func TestLimiterWrapping(t *testing.T) {
	reader := bytes.NewReader([]byte{})
	writer := new(bytes.Buffer)

	for _, limits := range []Limits{
		{0},
		{42},
	} {
		limiter := NewStaticLimiter(limits)

		mustWrapDownstream := limits.DownloadKb > 0
		test.Equals(t, limiter.Downstream(reader) != reader, mustWrapDownstream)
		test.Equals(t, limiter.DownstreamWriter(writer) != writer, mustWrapDownstream)
	}
}

func TestReadLimiter(t *testing.T) {
	reader := bytes.NewReader(make([]byte, 300))
	limiter := rate.NewLimiter(rate.Limit(10000), int(100))
	limReader := rateLimitedReader{reader, limiter}

	n, err := limReader.Read([]byte{})
	test.OK(t, err)
	test.Equals(t, n, 0)

	n, err = limReader.Read(make([]byte, 300))
	test.OK(t, err)
	test.Equals(t, n, 300)

	n, err = limReader.Read([]byte{})
	test.Equals(t, err, io.EOF)
	test.Equals(t, n, 0)
}

func TestWriteLimiter(t *testing.T) {
	writer := &bytes.Buffer{}
	limiter := rate.NewLimiter(rate.Limit(10000), int(100))
	limWriter := rateLimitedWriter{writer, limiter}

	n, err := limWriter.Write([]byte{})
	test.OK(t, err)
	test.Equals(t, n, 0)

	n, err = limWriter.Write(make([]byte, 300))
	test.OK(t, err)
	test.Equals(t, n, 300)
}

type tracedReadCloser struct {
	io.Reader
	Closed bool
}

func newTracedReadCloser(rd io.Reader) *tracedReadCloser {
	return &tracedReadCloser{Reader: rd}
}

func (r *tracedReadCloser) Close() error {
	r.Closed = true
	return nil
}
