package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yabinmeng/opscs3restore/internal/debug"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// DefaultField is the name of the array holding the SSTable records.
const DefaultField = "sstables"

// ParseError is returned for a manifest that cannot be decoded at all
// (Pos < 0) and recorded in Index.Skipped for single malformed entries.
type ParseError struct {
	Pos int
	Err error
}

func (e *ParseError) Error() string {
	if e.Pos < 0 {
		return fmt.Sprintf("invalid manifest: %v", e.Err)
	}
	return fmt.Sprintf("manifest entry %d: %v", e.Pos, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a manifest document. The document must be a JSON object
// holding an array under field. Entries that are not objects or lack one of
// the required keys are skipped and reported in Index.Skipped.
func Parse(rd io.Reader, field string) (*Index, error) {
	if field == "" {
		field = DefaultField
	}

	var doc map[string]json.RawMessage
	dec := json.NewDecoder(rd)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Pos: -1, Err: errors.Wrap(err, "decode")}
	}
	if doc == nil {
		return nil, &ParseError{Pos: -1, Err: errors.New("document is not an object")}
	}

	raw, ok := lookupField(doc, field)
	if !ok {
		return nil, &ParseError{Pos: -1, Err: errors.Errorf("field %q not found", field)}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return nil, &ParseError{Pos: -1, Err: errors.Errorf("field %q is not an array", field)}
	}

	idx := newIndex()
	for i, entry := range entries {
		rec, err := parseRecord(entry)
		if err != nil {
			debug.Log("skipping manifest entry %d: %v", i, err)
			idx.Skipped = append(idx.Skipped, &ParseError{Pos: i, Err: err})
			continue
		}
		idx.insert(rec)
	}

	debug.Log("parsed manifest: %d records, %d skipped", idx.Len(), len(idx.Skipped))
	return idx, nil
}

func lookupField(doc map[string]json.RawMessage, field string) (json.RawMessage, bool) {
	if raw, ok := doc[field]; ok {
		return raw, true
	}
	for k, raw := range doc {
		if strings.EqualFold(k, field) {
			return raw, true
		}
	}
	return nil, false
}

func parseRecord(entry json.RawMessage) (Record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(entry, &obj); err != nil || obj == nil {
		return Record{}, errors.New("entry is not an object")
	}

	fields := make(map[string]string, len(obj))
	for k, raw := range obj {
		key := strings.ToLower(k)
		switch key {
		case "name", "uniquifier", "keyspace", "cf", "version":
		default:
			continue
		}
		v, err := scalar(raw)
		if err != nil {
			return Record{}, errors.Wrapf(err, "key %q", k)
		}
		fields[key] = v
	}

	for _, key := range []string{"name", "keyspace", "cf", "version"} {
		if fields[key] == "" {
			return Record{}, errors.Errorf("missing %q", key)
		}
	}

	return Record{
		FileName:   fields["name"],
		Uniquifier: fields["uniquifier"],
		Keyspace:   fields["keyspace"],
		Table:      fields["cf"],
		Version:    fields["version"],
	}, nil
}

// scalar accepts JSON strings and numbers and returns their text.
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.Errorf("unsupported value %s", raw)
	}
	return n.String(), nil
}
