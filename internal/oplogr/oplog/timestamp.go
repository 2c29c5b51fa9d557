package oplog

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// cmdTimeLayout renders the wall clock of the configured zone. The trailing
// Z is appended literally; the instant is not converted to UTC.
const cmdTimeLayout = "2006-01-02T15:04:05.000"

// rewriteTimestamp rewrites s when it contains a T and parses as a date.
func (n *Normalizer) rewriteTimestamp(s string) string {
	if !strings.Contains(s, "T") {
		return s
	}
	t, err := parseTime(s, n.loc)
	if err != nil {
		return s
	}
	return t.In(n.loc).Format(cmdTimeLayout) + "Z"
}

// epochMillis parses an ExecuteTime value. Unparseable input yields nil.
func (n *Normalizer) epochMillis(s string) *int64 {
	if s == "" {
		return nil
	}
	t, err := parseTime(s, n.loc)
	if err != nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// parseTime wraps dateparse.ParseIn; dateparse panics on some malformed
// inputs and command args are arbitrary user data.
func parseTime(s string, loc *time.Location) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse time %q: %v", s, r)
		}
	}()
	return dateparse.ParseIn(s, loc)
}
