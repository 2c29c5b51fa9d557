package stats

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

// Summary aggregates an oplog file. Duplicates counts lines whose id was
// already seen; retried pages may append the same record twice.
type Summary struct {
	Records     int
	Malformed   int
	Duplicates  int
	ByOp        map[string]int
	ByNamespace map[string]int
	First       *time.Time
	Last        *time.Time

	seen map[string]struct{}
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary {
	return &Summary{
		ByOp:        make(map[string]int),
		ByNamespace: make(map[string]int),
		seen:        make(map[string]struct{}),
	}
}

// CollectFiles reads every file into one Summary.
func CollectFiles(paths []string) (*Summary, error) {
	s := NewSummary()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		err = s.Add(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
	}
	return s, nil
}

// Add reads oplog lines from r. Lines that are not JSON records are counted
// as malformed and skipped.
func (s *Summary) Add(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec oplog.OperationRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
			s.Malformed++
			continue
		}
		s.add(&rec)
	}
	return scanner.Err()
}

func (s *Summary) add(rec *oplog.OperationRecord) {
	s.Records++
	if _, dup := s.seen[rec.ID]; dup {
		s.Duplicates++
	} else {
		s.seen[rec.ID] = struct{}{}
	}
	s.ByOp[string(rec.Op)]++
	s.ByNamespace[rec.NS]++

	if rec.Ts == nil {
		return
	}
	ts := time.UnixMilli(*rec.Ts).UTC()
	if s.First == nil || ts.Before(*s.First) {
		s.First = &ts
	}
	if s.Last == nil || ts.After(*s.Last) {
		s.Last = &ts
	}
}

// Unique is the number of distinct record ids.
func (s *Summary) Unique() int {
	return len(s.seen)
}

// Print writes a human-readable report.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "records:    %s\n", humanize.Comma(int64(s.Records)))
	fmt.Fprintf(w, "unique:     %s\n", humanize.Comma(int64(s.Unique())))
	fmt.Fprintf(w, "duplicates: %s\n", humanize.Comma(int64(s.Duplicates)))
	fmt.Fprintf(w, "malformed:  %s\n", humanize.Comma(int64(s.Malformed)))
	if s.First != nil && s.Last != nil {
		fmt.Fprintf(w, "range:      %s .. %s\n", s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339))
	}

	fmt.Fprintln(w, "\nby op:")
	for _, k := range byCountDesc(s.ByOp) {
		fmt.Fprintf(w, "  %-16s %s\n", k, humanize.Comma(int64(s.ByOp[k])))
	}
	fmt.Fprintln(w, "\nby namespace:")
	for _, k := range byCountDesc(s.ByNamespace) {
		fmt.Fprintf(w, "  %-40s %s\n", k, humanize.Comma(int64(s.ByNamespace[k])))
	}
}

// byCountDesc returns the keys of m ordered by count, then name.
func byCountDesc(m map[string]int) []string {
	keys := lo.Keys(m)
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
