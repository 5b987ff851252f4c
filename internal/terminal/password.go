// Package terminal reads secrets from the controlling terminal.
package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// ReadPassword reads the password from the given reader which must be a
// tty. Prompt is printed on the writer out before attempting to read the
// password. If the context is canceled, the function leaks the password reading
// goroutine.
func ReadPassword(ctx context.Context, in *os.File, out *os.File, prompt string) (password string, err error) {
	fd := int(out.Fd())
	state, err := term.GetState(fd)
	if err != nil {
		return "", errors.Wrap(err, "unable to get terminal state")
	}

	done := make(chan struct{})
	var buf []byte

	go func() {
		defer close(done)
		_, err = fmt.Fprint(out, prompt)
		if err != nil {
			return
		}
		buf, err = term.ReadPassword(int(in.Fd()))
		if err != nil {
			return
		}
		_, err = fmt.Fprintln(out)
	}()

	select {
	case <-ctx.Done():
		if rerr := term.Restore(fd, state); rerr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "unable to restore terminal state: %v\n", rerr)
		}
		return "", ctx.Err()
	case <-done:
	}

	if err != nil {
		return "", errors.Wrap(err, "ReadPassword")
	}

	return string(buf), nil
}

// ReadLine reads a password from the first line of rd, for piped input.
func ReadLine(rd io.Reader) (string, error) {
	sc := bufio.NewScanner(rd)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", errors.Wrap(err, "read password")
		}
		return "", errors.New("no password on input")
	}
	return strings.TrimRight(sc.Text(), "\r"), nil
}

// Prompt asks for a password on the terminal, or reads a line from in if in
// is not a terminal.
func Prompt(ctx context.Context, in *os.File, out *os.File, prompt string) (string, error) {
	if InputIsTerminal(in.Fd()) {
		return ReadPassword(ctx, in, out, prompt)
	}
	return ReadLine(in)
}
