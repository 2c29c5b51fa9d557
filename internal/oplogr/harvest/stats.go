package harvest

import (
	"github.com/samber/lo"

	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

// PageStats counts produced records per op for one page. Every op of the
// verb table is present so logged snapshots have a stable shape.
type PageStats map[oplog.Op]int

func newPageStats() PageStats {
	s := make(PageStats, len(oplog.AllOps()))
	for _, op := range oplog.AllOps() {
		s[op] = 0
	}
	return s
}

// Total is the number of records counted.
func (s PageStats) Total() int {
	return lo.Sum(lo.Values(map[oplog.Op]int(s)))
}

// merge adds s into totals.
func (s PageStats) merge(totals map[oplog.Op]int) {
	for op, n := range s {
		totals[op] += n
	}
}

// PageResult describes one successfully harvested page.
type PageResult struct {
	Page    int
	Fetched int // raw records returned by the API
	Written int // operation records appended to the sink
	Stats   PageStats
}
