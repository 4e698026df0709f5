// Package powerline holds the pure arithmetic behind the PowerLine queue:
// binary-tree derivation over position numbers, rank percentiles and the
// small display helpers the API surfaces alongside them.
//
// Nothing here touches storage. Every value is a function of the position
// number (and, for windowed views, of the window start), so it can never go
// stale relative to the stored record.
package powerline

import (
	"math/bits"
)

// RootPosition is the first position ever assigned and the root of the tree.
const RootPosition int64 = 1

// MaxPosition is the largest position number the queue accepts. It keeps
// 2p+1 and any window end well inside int64 and exact in JSON clients.
const MaxPosition int64 = 1 << 53

// ValidPosition reports whether p lies in [RootPosition, MaxPosition].
func ValidPosition(p int64) bool {
	return p >= RootPosition && p <= MaxPosition
}

// MaxWindowLevels bounds windowed tree queries so the window end cannot overflow.
const MaxWindowLevels = 20

// TreeLevel returns floor(log2(p)), the depth of p in the global tree.
// The root is level 0. Positions below 1 have no level and yield -1.
func TreeLevel(p int64) int {
	if p < 1 {
		return -1
	}
	return bits.Len64(uint64(p)) - 1
}

// ParentPosition returns floor(p/2). The root (and anything below it) has no parent.
func ParentPosition(p int64) (int64, bool) {
	if p <= RootPosition {
		return 0, false
	}
	return p / 2, true
}

// ChildPositions returns the two children of p: 2p and 2p+1.
// Callers pass positions that satisfy ValidPosition, so neither overflows.
func ChildPositions(p int64) [2]int64 {
	return [2]int64{2 * p, 2*p + 1}
}

// TreePath returns the ancestors of p from the root down to p itself.
func TreePath(p int64) []int64 {
	if p < 1 {
		return nil
	}
	path := make([]int64, TreeLevel(p)+1)
	for i := len(path) - 1; i >= 0; i-- {
		path[i] = p
		p /= 2
	}
	return path
}

// WindowEnd returns the last position covered by a windowed tree view of
// the given depth starting at start: start + 2^levels - 1. For a valid
// start the result always fits in int64.
func WindowEnd(start int64, levels int) int64 {
	if levels <= 0 {
		return start - 1
	}
	if levels > MaxWindowLevels {
		levels = MaxWindowLevels
	}
	return start + (int64(1) << uint(levels)) - 1
}

// WindowLevel is the level of p inside a window that starts at start:
// floor(log2(p - start + 1)). It is relative to the window, not the global
// tree, so it differs from TreeLevel unless start is 1.
func WindowLevel(start, p int64) (int, bool) {
	if p < start {
		return 0, false
	}
	return TreeLevel(p - start + 1), true
}
