// Package aggregate implements the count monoid used by both the combine
// and the reduce phase. Both phases share one merge, so feeding reduce the
// output of any number of combines gives the same total as reducing the raw
// contributions directly.
package aggregate

import (
	"fmt"
	"strconv"
)

// Identity is the neutral element of Merge.
const Identity int64 = 0

// Merge folds values into acc. Integer addition is associative and
// commutative, so grouping and order of values do not matter.
func Merge(acc int64, values ...int64) int64 {
	for _, v := range values {
		acc += v
	}
	return acc
}

// Sum merges values starting from Identity.
func Sum(values []int64) int64 {
	return Merge(Identity, values...)
}

// Combine produces a per-partition partial sum for key.
func Combine[K comparable](key K, values []int64) (K, int64) {
	return key, Sum(values)
}

// Reduce produces the final total for key.
func Reduce[K comparable](key K, values []int64) (K, int64) {
	return key, Sum(values)
}

// Parse decodes count values from their wire representation.
func Parse(raw []string) ([]int64, error) {
	values := make([]int64, 0, len(raw))
	for _, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid count %q: %w", s, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid count %q: negative", s)
		}
		values = append(values, v)
	}
	return values, nil
}

// Format encodes a count for the wire.
func Format(v int64) string {
	return strconv.FormatInt(v, 10)
}
