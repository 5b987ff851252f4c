package limiter

import (
	"io"
)

// Limits represents static download limits in KiB/s. A value of zero
// disables the limit.
type Limits struct {
	DownloadKb int
}

// Limiter defines an interface that implementers can use to rate limit I/O
// according to some policy defined and configured by the implementer.
type Limiter interface {
	Downstream(r io.Reader) io.Reader
	DownstreamWriter(r io.Writer) io.Writer
}
