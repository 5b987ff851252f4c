package catalog_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yabinmeng/opscs3restore/internal/backend/mem"
	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/errors"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

const doc = `{"sstables": [
	{"name": "mc-1-big-Data.db", "uniquifier": "u1", "keyspace": "K1", "cf": "T1", "version": "mc"},
	{"name": "mc-1-big-Index.db", "uniquifier": "u1", "keyspace": "K1", "cf": "T1", "version": "mc"},
	{"name": "mc-2-big-Data.db", "uniquifier": "u2", "keyspace": "K1", "cf": "T2", "version": "mc"},
	{"name": "mc-3-big-Data.db", "uniquifier": "u3", "keyspace": "K2", "cf": "T1", "version": "mc"}
]}`

func setup(t *testing.T) (*mem.MemoryBackend, *manifest.Index) {
	idx, err := manifest.Parse(strings.NewReader(doc), "")
	rtest.OK(t, err)

	be := mem.New()
	for _, name := range []string{"mc-1-big-Data.db", "mc-1-big-Index.db", "mc-2-big-Data.db", "mc-3-big-Data.db", "mc-9-big-Data.db"} {
		be.Put("snapshots/host1/sstables/"+name, []byte(name))
	}
	be.Put("snapshots/host2/sstables/mc-1-big-Data.db", []byte("other host"))
	return be, idx
}

func keys(matches []catalog.Match) []string {
	var res []string
	for _, m := range matches {
		res = append(res, m.Object.Key)
	}
	return res
}

func TestFilterKeyspace(t *testing.T) {
	be, idx := setup(t)

	var seen []string
	matches, err := catalog.New(be).Run(context.TODO(), "host1", idx, catalog.Criteria{Keyspace: "k1"}, func(m catalog.Match) error {
		seen = append(seen, m.Object.Key)
		return nil
	})
	rtest.OK(t, err)

	want := []string{
		"snapshots/host1/sstables/mc-1-big-Data.db",
		"snapshots/host1/sstables/mc-1-big-Index.db",
		"snapshots/host1/sstables/mc-2-big-Data.db",
	}
	if diff := cmp.Diff(want, keys(matches)); diff != "" {
		t.Errorf("matches differ (-want +got):\n%s", diff)
	}
	rtest.Equals(t, want, seen)

	rtest.Equals(t, "T1", matches[0].Record.Table)
	rtest.Equals(t, int64(len("mc-1-big-Data.db")), matches[0].Object.Size)
}

func TestFilterTable(t *testing.T) {
	be, idx := setup(t)

	matches, err := catalog.New(be).Run(context.TODO(), "host1", idx, catalog.Criteria{Keyspace: "K1", Table: "t1"}, nil)
	rtest.OK(t, err)
	rtest.Equals(t, []string{
		"snapshots/host1/sstables/mc-1-big-Data.db",
		"snapshots/host1/sstables/mc-1-big-Index.db",
	}, keys(matches))
}

func TestFilterOrphansExcluded(t *testing.T) {
	be, idx := setup(t)

	matches, err := catalog.New(be).Run(context.TODO(), "host1", idx, catalog.Criteria{Keyspace: "K1"}, nil)
	rtest.OK(t, err)
	for _, m := range matches {
		rtest.Assert(t, !strings.HasSuffix(m.Object.Key, "mc-9-big-Data.db"), "orphan %v included", m.Object.Key)
	}
}

func TestFilterNoMatches(t *testing.T) {
	be, idx := setup(t)

	matches, err := catalog.New(be).Run(context.TODO(), "host1", idx, catalog.Criteria{Keyspace: "K3"}, nil)
	rtest.OK(t, err)
	rtest.Equals(t, 0, len(matches))
}

func TestFilterEmptyIndex(t *testing.T) {
	be, _ := setup(t)
	idx, err := manifest.Parse(strings.NewReader(`{"sstables": []}`), "")
	rtest.OK(t, err)

	_, err = catalog.New(be).Run(context.TODO(), "host1", idx, catalog.Criteria{Keyspace: "K1"}, nil)
	rtest.ErrorIs(t, err, catalog.ErrEmptyIndex)
}

func TestFilterCallbackError(t *testing.T) {
	be, idx := setup(t)
	stop := errors.New("stop")

	var calls int
	matches, err := catalog.New(be).Run(context.TODO(), "host1", idx, catalog.Criteria{Keyspace: "K1"}, func(catalog.Match) error {
		calls++
		return stop
	})
	rtest.ErrorIs(t, err, stop)
	rtest.Equals(t, 1, calls)
	rtest.Equals(t, 1, len(matches))
}

func TestFilterCanceled(t *testing.T) {
	be, idx := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := catalog.New(be).Run(ctx, "host1", idx, catalog.Criteria{Keyspace: "K1"}, nil)
	rtest.ErrorIs(t, err, context.Canceled)
}

func TestCriteriaMatches(t *testing.T) {
	rec := manifest.Record{Keyspace: "Ks", Table: "Tbl"}
	for i, test := range []struct {
		crit catalog.Criteria
		want bool
	}{
		{catalog.Criteria{Keyspace: "ks"}, true},
		{catalog.Criteria{Keyspace: "KS", Table: "TBL"}, true},
		{catalog.Criteria{Keyspace: "ks", Table: "other"}, false},
		{catalog.Criteria{Keyspace: "other"}, false},
		{catalog.Criteria{}, false},
	} {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			rtest.Equals(t, test.want, test.crit.Matches(rec))
		})
	}
}
