package manifest

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// Defaults for the OpsCenter snapshot layout.
const (
	DefaultBasePrefix = "snapshots"
	DefaultMarker     = "opscenter_adhoc"
	DefaultFileName   = "backup.json"
)

// tokenLen is the length of the minute timestamp that follows the marker.
const tokenLen = len("2006-01-02-15-04")

const targetLayout = "2006-01-02-15-04-05-UTC"

// ErrNotFound is wrapped by NotFoundError.
var ErrNotFound = errors.New("manifest not found")

// NotFoundError is returned when no manifest exists for a host and time.
type NotFoundError struct {
	HostID string
	Time   time.Time
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no manifest for host %v at %v (prefix %v)",
		e.HostID, e.Time.UTC().Format("2006-01-02 15:04 MST"), e.Prefix)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// Locator finds the manifest of a backup run in the object store.
type Locator struct {
	Lister     backend.Lister
	BasePrefix string
	Marker     string
	FileName   string
}

// NewLocator returns a Locator using the default layout.
func NewLocator(l backend.Lister) *Locator {
	return &Locator{
		Lister:     l,
		BasePrefix: DefaultBasePrefix,
		Marker:     DefaultMarker,
		FileName:   DefaultFileName,
	}
}

// Prefix returns the listing prefix used for the host.
func (l *Locator) Prefix(hostID string) string {
	return path.Join(l.BasePrefix, hostID, l.Marker) + "_"
}

// Token formats t the way manifest keys are compared: truncated to the minute
// in UTC.
func Token(t time.Time) string {
	return t.UTC().Truncate(time.Minute).Format(targetLayout)
}

// keyToken extracts the comparable token from a key below prefix.
func keyToken(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix) || len(key) < len(prefix)+tokenLen {
		return "", false
	}
	return key[len(prefix):len(prefix)+tokenLen] + "-00-UTC", true
}

// Locate returns the key of the manifest written for hostID at time t. The
// first matching key in listing order wins.
func (l *Locator) Locate(ctx context.Context, hostID string, t time.Time) (string, error) {
	prefix := l.Prefix(hostID)
	want := Token(t)
	fileName := l.FileName
	if fileName == "" {
		fileName = DefaultFileName
	}

	debug.Log("looking for manifest %v below %v", want, prefix)

	errFound := errors.New("found")
	var found string
	err := l.Lister.List(ctx, prefix, func(fi backend.ObjectInfo) error {
		if path.Base(fi.Key) != fileName {
			return nil
		}
		tok, ok := keyToken(fi.Key, prefix)
		if !ok || !strings.EqualFold(tok, want) {
			return nil
		}
		found = fi.Key
		return errFound
	})
	if err != nil && !errors.Is(err, errFound) {
		return "", errors.Wrap(err, "List")
	}

	if found == "" {
		return "", &NotFoundError{HostID: hostID, Time: t, Prefix: prefix}
	}

	debug.Log("found manifest %v", found)
	return found, nil
}

// Fetch locates the manifest for hostID at time t, loads it and parses the
// records stored under field.
func (l *Locator) Fetch(ctx context.Context, be backend.Loader, hostID string, t time.Time, field string) (*Index, string, error) {
	key, err := l.Locate(ctx, hostID, t)
	if err != nil {
		return nil, "", err
	}

	buf, err := backend.LoadAll(ctx, nil, be, key)
	if err != nil {
		return nil, key, errors.Wrapf(err, "load manifest %v", key)
	}

	idx, err := Parse(bytes.NewReader(buf), field)
	if err != nil {
		return nil, key, errors.Wrapf(err, "parse manifest %v", key)
	}

	return idx, key, nil
}
