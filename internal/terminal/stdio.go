package terminal

import (
	"golang.org/x/term"
)

// InputIsTerminal reports whether fd refers to a terminal.
func InputIsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
