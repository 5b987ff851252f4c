package restorer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	"github.com/yabinmeng/opscs3restore/internal/ui"
	"github.com/yabinmeng/opscs3restore/internal/ui/progress"
)

// DefaultWorkers is the number of groups downloaded concurrently.
const DefaultWorkers = 5

const timeLayout = "2006-01-02 15:04:05"

// ErrDestination is wrapped by DestinationError.
var ErrDestination = errors.New("download destination unusable")

// DestinationError is returned when the download root cannot be prepared.
type DestinationError struct {
	Path string
	Err  error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("download destination %v: %v", e.Path, e.Err)
}

func (e *DestinationError) Unwrap() []error { return []error{ErrDestination, e.Err} }

// Options configure a Restorer.
type Options struct {
	Workers   int
	GroupSize int
	Grouping  Grouping

	// BasePrefix is the first key segment kept in the local path.
	BasePrefix string

	Flatten   bool
	Clear     bool
	CheckSize bool
}

func (opts *Options) applyDefaults() {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.GroupSize <= 0 {
		opts.GroupSize = DefaultGroupSize
	}
	if opts.Grouping == "" {
		opts.Grouping = GroupPositional
	}
	if opts.BasePrefix == "" {
		opts.BasePrefix = manifest.DefaultBasePrefix
	}
}

// GroupStats describes the outcome of one group.
type GroupStats struct {
	Group      int
	Total      int
	Downloaded int
	Failed     int
	Bytes      uint64
	Start, End time.Time
}

// Summary is returned by Run after all workers have finished.
type Summary struct {
	Groups        []GroupStats
	Downloaded    int
	Failed        int
	SizeMismatch  int
	Bytes         uint64
	Duration      time.Duration
	FailedObjects []string
}

func (s *Summary) add(gs GroupStats, failed []string) {
	s.Groups = append(s.Groups, gs)
	s.Downloaded += gs.Downloaded
	s.Failed += gs.Failed
	s.Bytes += gs.Bytes
	s.FailedObjects = append(s.FailedObjects, failed...)
}

// Restorer downloads groups of matches below a local directory.
type Restorer struct {
	be      backend.Loader
	dst     string
	opts    Options
	printer progress.Printer

	now func() time.Time
}

// New returns a Restorer writing below dst.
func New(be backend.Loader, dst string, opts Options, printer progress.Printer) *Restorer {
	opts.applyDefaults()
	if printer == nil {
		printer = &progress.NoopPrinter{}
	}

	return &Restorer{
		be:      be,
		dst:     dst,
		opts:    opts,
		printer: printer,
		now:     time.Now,
	}
}

// Options returns the effective options.
func (r *Restorer) Options() Options {
	return r.opts
}

// PrepareDestination creates the download root if it does not exist. An
// existing root is emptied if the Clear option is set.
func (r *Restorer) PrepareDestination() error {
	fi, err := os.Stat(r.dst)
	switch {
	case errors.Is(err, os.ErrNotExist):
		debug.Log("creating download root %v", r.dst)
		if err := os.MkdirAll(r.dst, 0755); err != nil {
			return &DestinationError{Path: r.dst, Err: err}
		}
		return nil
	case err != nil:
		return &DestinationError{Path: r.dst, Err: err}
	case !fi.IsDir():
		return &DestinationError{Path: r.dst, Err: errors.New("not a directory")}
	}

	if !r.opts.Clear {
		return nil
	}

	entries, err := os.ReadDir(r.dst)
	if err != nil {
		return &DestinationError{Path: r.dst, Err: err}
	}

	debug.Log("removing %d entries below %v", len(entries), r.dst)
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(r.dst, entry.Name())); err != nil {
			return &DestinationError{Path: r.dst, Err: err}
		}
	}
	return nil
}

// TargetPath returns the local path for a match.
func (r *Restorer) TargetPath(m catalog.Match) (string, error) {
	return TargetPath(r.dst, m.Object.Key, r.opts.BasePrefix, m.Record, r.opts.Flatten)
}

// Run downloads all groups with a fixed number of workers. Objects that cannot
// be downloaded are counted as failed, the remaining downloads continue. The
// returned error is only set if ctx was cancelled.
func (r *Restorer) Run(ctx context.Context, groups []Group) (*Summary, error) {
	start := r.now()
	summary := &Summary{}

	var total uint64
	for _, g := range groups {
		for _, m := range g.Matches {
			total += uint64(max(m.Object.Size, 0))
		}
	}
	counter := r.printer.NewCounter("downloaded")
	counter.SetMax(total)

	var m sync.Mutex
	groupCh := make(chan Group)

	var wg errgroup.Group
	worker := func() error {
		for g := range groupCh {
			gs, failed := r.downloadGroup(ctx, g, counter)

			m.Lock()
			summary.add(gs.GroupStats, failed)
			summary.SizeMismatch += gs.sizeMismatch
			m.Unlock()
		}
		return nil
	}

	workers := min(r.opts.Workers, max(len(groups), 1))
	debug.Log("downloading %d groups with %d workers", len(groups), workers)
	for i := 0; i < workers; i++ {
		wg.Go(worker)
	}

	// failures, including cancellation, are recorded per object, so every
	// group is handed to a worker
	for _, g := range groups {
		groupCh <- g
	}
	close(groupCh)

	err := wg.Wait()
	counter.Done()

	sortGroupStats(summary.Groups)
	summary.Duration = r.now().Sub(start)

	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

type groupResult struct {
	GroupStats
	sizeMismatch int
}

func (r *Restorer) downloadGroup(ctx context.Context, g Group, counter *progress.Counter) (groupResult, []string) {
	res := groupResult{GroupStats: GroupStats{
		Group: g.ID,
		Total: len(g.Matches),
		Start: r.now(),
	}}
	r.printer.P("   - Starting %v at: %s", g, res.Start.Format(timeLayout))

	var failed []string
	for _, m := range g.Matches {
		n, err := r.download(ctx, m)
		if err != nil {
			debug.Log("download of %v failed: %+v", m.Object.Key, err)
			r.printer.E("     [Group %d] download of %q failed [keyspace: %v; table: %v]: %v",
				g.ID, m.Object.Key, m.Record.Keyspace, m.Record.Table, err)
			res.Failed++
			failed = append(failed, m.Object.Key)
			continue
		}

		res.Downloaded++
		res.Bytes += uint64(n)
		counter.Add(uint64(n))
		r.printer.P("     [Group %d] download of %q completed [keyspace: %v; table: %v]",
			g.ID, m.Object.Key, m.Record.Keyspace, m.Record.Table)

		if r.opts.CheckSize {
			r.printer.P("        >>> %d of %d bytes transferred (%v)",
				n, m.Object.Size, ui.FormatPercent(uint64(n), uint64(max(m.Object.Size, 0))))
			if n != m.Object.Size {
				res.sizeMismatch++
				r.printer.E("     [Group %d] size mismatch for %q: listed %v, transferred %v",
					g.ID, m.Object.Key, ui.FormatBytes(uint64(max(m.Object.Size, 0))), ui.FormatBytes(uint64(n)))
			}
		}
	}

	res.End = r.now()
	r.printer.P("   - Exiting %v at %s (duration: %d seconds): %d of %d objects downloaded, %d failed",
		g, res.End.Format(timeLayout), int64(res.End.Sub(res.Start)/time.Second),
		res.Downloaded, res.Total, res.Failed)

	return res, failed
}

// download writes one object to its target path and returns the number of
// bytes written. The data is written to a temporary file next to the target
// and renamed on success, so a failed download leaves an existing file alone.
func (r *Restorer) download(ctx context.Context, m catalog.Match) (int64, error) {
	target, err := r.TargetPath(m)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, errors.WithStack(err)
	}

	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return 0, errors.WithStack(err)
	}
	tmp := f.Name()

	var n int64
	loadErr := f.Chmod(0644)
	if loadErr == nil {
		loadErr = r.be.Load(ctx, m.Object.Key, func(rd io.Reader) error {
			// the callback may run again after a retry
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			if err := f.Truncate(0); err != nil {
				return err
			}

			var cerr error
			n, cerr = io.Copy(f, rd)
			return cerr
		})
	}
	closeErr := f.Close()

	switch {
	case loadErr != nil:
		err = errors.Wrapf(loadErr, "Load(%v)", m.Object.Key)
	case closeErr != nil:
		err = errors.WithStack(closeErr)
	default:
		err = errors.WithStack(os.Rename(tmp, target))
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	return n, nil
}
