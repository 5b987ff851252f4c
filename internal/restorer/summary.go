package restorer

import "sort"

func sortGroupStats(stats []GroupStats) {
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Group < stats[j].Group
	})
}

// Complete reports whether every object was downloaded.
func (s *Summary) Complete() bool {
	return s.Failed == 0
}

// Total returns the number of objects handled.
func (s *Summary) Total() int {
	return s.Downloaded + s.Failed
}
