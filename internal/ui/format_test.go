package ui

import (
	"testing"
	"time"

	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func TestFormatBytes(t *testing.T) {
	for _, c := range []struct {
		size uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	} {
		rtest.Equals(t, c.want, FormatBytes(c.size))
	}
}

func TestFormatPercent(t *testing.T) {
	rtest.Equals(t, "", FormatPercent(5, 0))
	rtest.Equals(t, "50.00%", FormatPercent(5, 10))
	rtest.Equals(t, "100.00%", FormatPercent(11, 10))
}

func TestFormatDuration(t *testing.T) {
	rtest.Equals(t, "0:05", FormatDuration(5*time.Second))
	rtest.Equals(t, "2:03", FormatDuration(123*time.Second))
	rtest.Equals(t, "1:00:01", FormatDuration(3601*time.Second))
}

func TestParseBytes(t *testing.T) {
	v, err := ParseBytes("2KiB")
	rtest.OK(t, err)
	rtest.Equals(t, uint64(2048), v)

	_, err = ParseBytes("lots")
	rtest.Assert(t, err != nil, "expected error for invalid size")
}
