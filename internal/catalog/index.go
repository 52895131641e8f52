package catalog

import "sort"

// Index counts entries per category, highest count first. Equal counts keep
// the order in which their category first appears in apis.
func Index(apis []API) []CategoryCount {
	positions := make(map[string]int)
	counts := make([]CategoryCount, 0)

	for _, api := range apis {
		pos, ok := positions[api.Category]
		if !ok {
			pos = len(counts)
			positions[api.Category] = pos
			counts = append(counts, CategoryCount{Category: api.Category})
		}
		counts[pos].Count++
	}

	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// Total sums the counts of an index.
func Total(counts []CategoryCount) int {
	n := 0
	for _, c := range counts {
		n += c.Count
	}
	return n
}
