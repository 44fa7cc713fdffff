package sigma

import (
	"cmp"
	"slices"
)

// sortedKeys returns the keys of m in ascending order. It is the
// Go 1.21-compatible equivalent of slices.Sorted(maps.Keys(m)).
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
