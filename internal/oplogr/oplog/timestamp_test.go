package oplog

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

var cmdTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

func TestRewriteTimestamp(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "rfc3339 millis", input: "2024-01-01T00:00:00.000Z", want: "2024-01-01T00:00:00.000Z"},
		{name: "rfc3339 seconds", input: "2024-06-30T12:34:56Z", want: "2024-06-30T12:34:56.000Z"},
		{name: "numeric offset", input: "2024-06-30T12:34:56+08:00", want: "2024-06-30T04:34:56.000Z"},
		{name: "no zone", input: "2024-03-05T10:20:30", want: "2024-03-05T10:20:30.000Z"},
		{name: "not a date", input: "STATUS_ACTIVE", want: "STATUS_ACTIVE"},
		{name: "no T is untouched", input: "2024-01-01 00:00:00", want: "2024-01-01 00:00:00"},
		{name: "lowercase t only", input: "status", want: "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.rewriteTimestamp(tt.input))
		})
	}
}

func TestRewriteTimestamp_MatchesFixedPattern(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))
	for _, in := range []string{
		"2024-01-01T00:00:00.000Z",
		"2023-12-31T23:59:59.999Z",
		"2024-02-29T08:00:00+01:00",
	} {
		got := n.rewriteTimestamp(in)
		assert.Regexp(t, cmdTimePattern, got, "input %q", in)
	}
}

// The rendered clock is the configured zone's wall clock with a literal Z.
func TestRewriteTimestamp_UsesLocalWallClock(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*3600)
	n := NewNormalizer(WithLocation(shanghai))

	assert.Equal(t, "2024-01-01T08:00:00.000Z", n.rewriteTimestamp("2024-01-01T00:00:00.000Z"))
	assert.Equal(t, "2024-03-05T10:20:30.000Z", n.rewriteTimestamp("2024-03-05T10:20:30"))
}

func TestRewriteStrings_VisitsNestedLeaves(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))
	in := map[string]any{
		"filter": map[string]any{
			"createdAt": map[string]any{"$gte": "2024-05-01T00:00:00Z"},
			"$or": []any{
				map[string]any{"at": "2024-05-02T01:02:03.456Z"},
				map[string]any{"name": "Tomato"},
			},
		},
		"batch": []any{"2024-05-03T00:00:00Z", []any{"2024-05-04T00:00:00Z"}},
		"limit": 10.0,
	}
	want := map[string]any{
		"filter": map[string]any{
			"createdAt": map[string]any{"$gte": "2024-05-01T00:00:00.000Z"},
			"$or": []any{
				map[string]any{"at": "2024-05-02T01:02:03.456Z"},
				map[string]any{"name": "Tomato"},
			},
		},
		"batch": []any{"2024-05-03T00:00:00.000Z", []any{"2024-05-04T00:00:00.000Z"}},
		"limit": 10.0,
	}

	got := rewriteStrings(in, n.rewriteTimestamp)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rewrite mismatch (-want +got):\n%s", diff)
	}
}

func TestRewriteStrings_VisitsEachLeafOnce(t *testing.T) {
	visits := map[string]int{}
	in := map[string]any{
		"a": "x",
		"b": []any{"y", map[string]any{"c": "z"}},
	}
	rewriteStrings(in, func(s string) string {
		visits[s]++
		return s + s
	})
	assert.Equal(t, map[string]int{"x": 1, "y": 1, "z": 1}, visits)
}

func TestEpochMillis(t *testing.T) {
	n := NewNormalizer(WithLocation(time.UTC))

	got := n.epochMillis("2024-01-01T00:00:05Z")
	if assert.NotNil(t, got) {
		assert.Equal(t, int64(1704067205000), *got)
	}
	assert.Nil(t, n.epochMillis(""))
	assert.Nil(t, n.epochMillis("yesterday-ish"))
}
