package restorer

import (
	"fmt"

	"github.com/yabinmeng/opscs3restore/internal/catalog"
	"github.com/yabinmeng/opscs3restore/internal/errors"
)

// DefaultGroupSize is the number of constituent files of one SSTable.
const DefaultGroupSize = 6

// Grouping selects how matches are split into groups.
type Grouping string

const (
	// GroupPositional cuts the matches into groups of a fixed size in
	// listing order.
	GroupPositional Grouping = "positional"
	// GroupByFragmentKey puts all files of one SSTable into the same group.
	GroupByFragmentKey Grouping = "fragment"
)

// String implements pflag.Value.
func (g *Grouping) String() string { return string(*g) }

// Set implements pflag.Value.
func (g *Grouping) Set(s string) error {
	switch Grouping(s) {
	case GroupByFragmentKey, GroupPositional:
		*g = Grouping(s)
		return nil
	}
	return errors.Errorf("invalid grouping %q, use %q or %q", s, GroupPositional, GroupByFragmentKey)
}

// Type implements pflag.Value.
func (g *Grouping) Type() string { return "grouping" }

// Group is a sequence of matches downloaded sequentially by one worker.
type Group struct {
	ID      int
	Key     string
	Matches []catalog.Match
}

func (g Group) String() string {
	if g.Key == "" {
		return fmt.Sprintf("group %d", g.ID)
	}
	return fmt.Sprintf("group %d (%v)", g.ID, g.Key)
}

// Partition cuts matches into groups of n in encounter order. The last group
// holds the remainder. Values of n below one select DefaultGroupSize.
func Partition(matches []catalog.Match, n int) []Group {
	if n <= 0 {
		n = DefaultGroupSize
	}

	groups := make([]Group, 0, (len(matches)+n-1)/n)
	for start := 0; start < len(matches); start += n {
		end := min(start+n, len(matches))
		groups = append(groups, Group{
			ID:      len(groups),
			Matches: matches[start:end:end],
		})
	}
	return groups
}

// GroupByFragment groups matches by keyspace, table and uniquifier. Groups are
// ordered by the first appearance of their key, members keep listing order.
func GroupByFragment(matches []catalog.Match) []Group {
	var groups []Group
	pos := make(map[string]int)

	for _, m := range matches {
		key := m.Record.Fragment()
		i, ok := pos[key]
		if !ok {
			i = len(groups)
			pos[key] = i
			groups = append(groups, Group{ID: i, Key: key})
		}
		groups[i].Matches = append(groups[i].Matches, m)
	}
	return groups
}

// Groups splits matches according to the configured grouping. Positional
// grouping is used unless fragment grouping is selected.
func (opts Options) Groups(matches []catalog.Match) []Group {
	if opts.Grouping == GroupByFragmentKey {
		return GroupByFragment(matches)
	}
	return Partition(matches, opts.GroupSize)
}
