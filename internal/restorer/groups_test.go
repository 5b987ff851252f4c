package restorer

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/yabinmeng/opscs3restore/internal/backend"
	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/manifest"
	rtest "github.com/yabinmeng/opscs3restore/internal/test"
)

func testMatches(n int, fragment func(i int) string) []catalog.Match {
	matches := make([]catalog.Match, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("mc-%d-big-Data.db", i)
		matches = append(matches, catalog.Match{
			Object: backend.ObjectInfo{Key: "snapshots/h/sstables/" + name, Size: int64(i)},
			Record: manifest.Record{FileName: name, Keyspace: "K", Table: "T", Uniquifier: fragment(i), Version: "mc"},
		})
	}
	return matches
}

func groupKeys(groups []Group) [][]string {
	var res [][]string
	for _, g := range groups {
		var keys []string
		for _, m := range g.Matches {
			keys = append(keys, m.Object.Key)
		}
		res = append(res, keys)
	}
	return res
}

func TestPartition(t *testing.T) {
	for _, m := range []int{0, 1, 5, 6, 7, 12, 13, 20} {
		t.Run(fmt.Sprint(m), func(t *testing.T) {
			matches := testMatches(m, func(int) string { return "" })
			groups := Partition(matches, 6)

			rtest.Equals(t, (m+5)/6, len(groups))

			var seen []catalog.Match
			for i, g := range groups {
				rtest.Equals(t, i, g.ID)
				if i < len(groups)-1 || m%6 == 0 {
					rtest.Equals(t, 6, len(g.Matches))
				} else {
					rtest.Equals(t, m%6, len(g.Matches))
				}
				seen = append(seen, g.Matches...)
			}

			// encounter order is preserved
			if diff := cmp.Diff(matches, seen); m > 0 && diff != "" {
				t.Errorf("order differs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPartitionDefaultSize(t *testing.T) {
	groups := Partition(testMatches(13, func(int) string { return "" }), 0)
	rtest.Equals(t, 3, len(groups))
	rtest.Equals(t, 1, len(groups[2].Matches))
}

func TestPartitionDoesNotAlias(t *testing.T) {
	matches := testMatches(4, func(int) string { return "" })
	groups := Partition(matches, 2)
	groups[0].Matches = append(groups[0].Matches, matches[3])
	rtest.Equals(t, "snapshots/h/sstables/mc-2-big-Data.db", groups[1].Matches[0].Object.Key)
}

func TestGroupByFragment(t *testing.T) {
	// interleaved fragments a, b, a, c, b, a
	frags := []string{"a", "b", "a", "c", "b", "a"}
	matches := testMatches(len(frags), func(i int) string { return frags[i] })

	groups := GroupByFragment(matches)
	rtest.Equals(t, 3, len(groups))

	want := [][]string{
		{"snapshots/h/sstables/mc-0-big-Data.db", "snapshots/h/sstables/mc-2-big-Data.db", "snapshots/h/sstables/mc-5-big-Data.db"},
		{"snapshots/h/sstables/mc-1-big-Data.db", "snapshots/h/sstables/mc-4-big-Data.db"},
		{"snapshots/h/sstables/mc-3-big-Data.db"},
	}
	if diff := cmp.Diff(want, groupKeys(groups)); diff != "" {
		t.Errorf("groups differ (-want +got):\n%s", diff)
	}
	rtest.Equals(t, "K/T/a", groups[0].Key)
	rtest.Equals(t, 2, groups[2].ID)
}

func TestGroupingFlag(t *testing.T) {
	var g Grouping
	rtest.OK(t, g.Set("positional"))
	rtest.Equals(t, GroupPositional, g)
	rtest.Equals(t, "positional", g.String())
	rtest.Assert(t, g.Set("random") != nil, "invalid grouping accepted")
	rtest.Equals(t, GroupPositional, g)
}

func TestOptionsGroups(t *testing.T) {
	matches := testMatches(7, func(i int) string { return fmt.Sprint(i % 2) })

	opts := Options{Grouping: GroupPositional, GroupSize: 3}
	rtest.Equals(t, 3, len(opts.Groups(matches)))

	opts = Options{Grouping: GroupByFragmentKey}
	rtest.Equals(t, 2, len(opts.Groups(matches)))
}

func groupSizes(groups []Group) []int {
	var sizes []int
	for _, g := range groups {
		sizes = append(sizes, len(g.Matches))
	}
	return sizes
}

func TestDefaultGroupingIsPositional(t *testing.T) {
	// two fragments with four and three files, contiguous in listing order
	matches := testMatches(7, func(i int) string {
		if i < 4 {
			return "u1"
		}
		return "u2"
	})

	opts := New(nil, rtest.TempDir(t), Options{}, nil).Options()
	rtest.Equals(t, GroupPositional, opts.Grouping)
	rtest.Equals(t, []int{6, 1}, groupSizes(opts.Groups(matches)))

	// the zero value without defaults applied groups positionally, too
	rtest.Equals(t, []int{6, 1}, groupSizes(Options{}.Groups(matches)))

	opts.Grouping = GroupByFragmentKey
	rtest.Equals(t, []int{4, 3}, groupSizes(opts.Groups(matches)))
}
