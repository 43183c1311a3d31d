package proctree

import (
	"slices"

	"github.com/samber/lo"
)

// Record is one row of a process table snapshot.
type Record struct {
	PID  int
	PPID int
}

// Index maps a parent pid to its child pids in ascending order.
type Index map[int][]int

// NewIndex builds an Index from a snapshot. Duplicate rows are collapsed and
// a process listed as its own parent is ignored.
func NewIndex(records []Record) Index {
	idx := make(Index)
	for _, r := range records {
		if r.PID <= 0 || r.PID == r.PPID {
			continue
		}
		idx[r.PPID] = append(idx[r.PPID], r.PID)
	}
	for ppid, children := range idx {
		children = lo.Uniq(children)
		slices.Sort(children)
		idx[ppid] = children
	}
	return idx
}

// Descendants returns every transitive child of root in depth-first order,
// excluding root. Each pid appears once even if the table has cycles.
func (idx Index) Descendants(root int) []int {
	visited := map[int]struct{}{root: {}}
	var out []int

	var walk func(pid int)
	walk = func(pid int) {
		for _, child := range idx[pid] {
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
			walk(child)
		}
	}
	walk(root)

	return out
}
