package restorer

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
)

// ErrPathReconstruction is wrapped by PathError.
var ErrPathReconstruction = errors.New("path reconstruction failed")

// PathError is returned when no local path can be derived for an object key.
type PathError struct {
	Key    string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("cannot derive local path for %v: %v", e.Key, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrPathReconstruction }

// SSTableName returns the SSTable file name contained in the base name of key.
// The name starts at the last occurrence of "<version>-" which is at the start
// of the base name or directly follows a dash.
func SSTableName(key, version string) (string, error) {
	if version == "" {
		return "", &PathError{Key: key, Reason: "empty version marker"}
	}

	base := path.Base(key)
	token := version + "-"

	for end := len(base); end > 0; {
		pos := strings.LastIndex(base[:end], token)
		if pos < 0 {
			break
		}
		if pos == 0 || base[pos-1] == '-' {
			return base[pos:], nil
		}
		end = pos + len(token) - 1
	}

	return "", &PathError{Key: key, Reason: fmt.Sprintf("version marker %q not found", version)}
}

// ObjectDir returns the directory part of key starting at the first path
// segment equal to basePrefix.
func ObjectDir(key, basePrefix string) (string, error) {
	if basePrefix == "" {
		return "", &PathError{Key: key, Reason: "empty base prefix"}
	}

	segments := strings.Split(path.Dir(key), "/")
	for i, seg := range segments {
		if seg == basePrefix {
			return strings.Join(segments[i:], "/"), nil
		}
	}

	return "", &PathError{Key: key, Reason: fmt.Sprintf("base prefix %q not found", basePrefix)}
}

func validComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// TargetPath returns the local file an object is downloaded to. The result
// only depends on its arguments.
func TargetPath(dst, key, basePrefix string, rec manifest.Record, flatten bool) (string, error) {
	name, err := SSTableName(key, rec.Version)
	if err != nil {
		return "", err
	}

	if flatten {
		return filepath.Join(dst, name), nil
	}

	if !validComponent(rec.Keyspace) {
		return "", &PathError{Key: key, Reason: fmt.Sprintf("invalid keyspace %q", rec.Keyspace)}
	}
	if !validComponent(rec.Table) {
		return "", &PathError{Key: key, Reason: fmt.Sprintf("invalid table %q", rec.Table)}
	}

	dir, err := ObjectDir(key, basePrefix)
	if err != nil {
		return "", err
	}

	return filepath.Join(dst, filepath.FromSlash(dir), rec.Keyspace, rec.Table, name), nil
}
