package terminal

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func TestReadLine(t *testing.T) {
	pw, err := ReadLine(strings.NewReader("secret\r\nsecond line\n"))
	rtest.OK(t, err)
	rtest.Equals(t, "secret", pw)

	_, err = ReadLine(strings.NewReader(""))
	rtest.Assert(t, err != nil, "empty input accepted")
}

func TestPromptNonTerminal(t *testing.T) {
	fn := filepath.Join(rtest.TempDir(t), "pw")
	rtest.OK(t, os.WriteFile(fn, []byte("from-file\n"), 0600))

	f, err := os.Open(fn)
	rtest.OK(t, err)
	defer func() { _ = f.Close() }()

	rtest.Assert(t, !InputIsTerminal(f.Fd()), "regular file reported as terminal")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pw, err := Prompt(ctx, f, os.Stderr, "password: ")
	rtest.OK(t, err)
	rtest.Equals(t, "from-file", pw)
}
