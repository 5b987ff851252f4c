// Package debug writes tracing output for developers. Nothing is logged unless
// $DEBUG_LOG names a file, or $DEBUG_FUNCS / $DEBUG_FILES select functions or
// files whose messages are echoed to stderr.
package debug

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

var opts struct {
	isEnabled bool
	logger    *log.Logger
	funcs     map[string]bool
	files     map[string]bool

	m sync.Mutex
}

// make sure that all the initialization happens before the init() functions
// are called, cf https://golang.org/ref/spec#Package_initialization
var _ = initDebug()

func initDebug() bool {
	initDebugLogger()
	opts.funcs = parseFilter(os.Getenv("DEBUG_FUNCS"), padFunc)
	opts.files = parseFilter(os.Getenv("DEBUG_FILES"), padFile)

	if opts.logger == nil && len(opts.funcs) == 0 && len(opts.files) == 0 {
		opts.isEnabled = false
		return false
	}

	opts.isEnabled = true
	fmt.Fprintf(os.Stderr, "debug enabled\n")

	return true
}

func initDebugLogger() {
	debugfile := os.Getenv("DEBUG_LOG")
	if debugfile == "" {
		return
	}

	fmt.Fprintf(os.Stderr, "debug log file %v\n", debugfile)

	f, err := os.OpenFile(debugfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to open debug log file: %v\n", err)
		os.Exit(2)
	}

	opts.logger = log.New(f, "", log.LstdFlags)
}

// parseFilter splits a comma separated list of glob patterns. A leading '-'
// disables a pattern, a leading '+' (or nothing) enables it.
func parseFilter(env string, pad func(string) string) map[string]bool {
	filter := make(map[string]bool)
	if env == "" {
		return filter
	}

	for _, fn := range strings.Split(env, ",") {
		t := pad(strings.TrimSpace(fn))
		if t == "" {
			continue
		}

		val := true
		switch t[0] {
		case '-':
			val = false
			t = t[1:]
		case '+':
			t = t[1:]
		}

		if _, err := path.Match(t, ""); err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid pattern %q: %v\n", t, err)
			os.Exit(5)
		}

		filter[t] = val
	}

	return filter
}

func padFunc(s string) string {
	return s
}

func padFile(s string) string {
	if s == "" || s == "all" {
		return s
	}

	if !strings.Contains(s, "/") {
		s = "*/" + s
	}

	if !strings.Contains(s, ":") {
		s = s + ":*"
	}

	return s
}

// taken from https://github.com/VividCortex/trace
func goroutineNum() int {
	b := make([]byte, 20)
	runtime.Stack(b, false)
	var num int

	_, _ = fmt.Sscanf(string(b), "goroutine %d ", &num)
	return num
}

// taken from https://github.com/VividCortex/trace
func getPosition() (fn, dir, file string, line int) {
	pc, file, line, ok := runtime.Caller(2)
	if !ok {
		return "", "", "", 0
	}

	dirname, filename := filepath.Base(filepath.Dir(file)), filepath.Base(file)

	return path.Base(runtime.FuncForPC(pc).Name()), dirname, filename, line
}

func checkFilter(filter map[string]bool, key string) bool {
	if v, ok := filter[key]; ok {
		return v
	}

	for k, v := range filter {
		if m, _ := path.Match(k, key); m {
			return v
		}
	}

	if v, ok := filter["all"]; ok && v {
		return true
	}

	return false
}

// Log prints a message to the debug log (if debug is enabled).
func Log(f string, args ...interface{}) {
	if !opts.isEnabled {
		return
	}

	fn, dir, file, line := getPosition()
	goroutine := goroutineNum()

	if len(f) == 0 || f[len(f)-1] != '\n' {
		f += "\n"
	}

	pos := fmt.Sprintf("%s/%s:%d", dir, file, line)
	formatString := fmt.Sprintf("%s\t%s\t%d\t%s", pos, fn, goroutine, f)

	opts.m.Lock()
	defer opts.m.Unlock()

	if opts.logger != nil {
		opts.logger.Printf(formatString, args...)
	}

	if checkFilter(opts.files, pos) || checkFilter(opts.funcs, fn) {
		fmt.Fprintf(os.Stderr, formatString, args...)
	}
}

// Enabled reports whether debug output is written anywhere.
func Enabled() bool {
	return opts.isEnabled
}
