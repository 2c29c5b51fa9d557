package oplog

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawRecord builds a RawAuditRecord the way the API client decodes it.
func rawRecord(t *testing.T, syntax, dbName, executeTime string) RawAuditRecord {
	t.Helper()
	b, err := json.Marshal(map[string]string{
		"DBName":      dbName,
		"Syntax":      syntax,
		"ExecuteTime": executeTime,
		"AccountName": "app",
	})
	require.NoError(t, err)
	var r RawAuditRecord
	require.NoError(t, json.Unmarshal(b, &r))
	return r
}

func utcNormalizer() *Normalizer {
	return NewNormalizer(WithLocation(time.UTC))
}

func TestNormalize_FindScenario(t *testing.T) {
	raw := rawRecord(t,
		`{"command":"find","args":{"filter":{"ts":"2024-01-01T00:00:00.000Z"}}, "ns":"mydb.users"}`,
		"mydb", "2024-01-01T00:00:05Z")

	rec, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, OpFind, rec.Op)
	assert.Equal(t, "mydb", rec.DB)
	assert.Equal(t, "users", rec.Coll)
	assert.Equal(t, "mydb.users", rec.NS)
	require.NotNil(t, rec.Ts)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC).UnixMilli(), *rec.Ts)
	assert.Len(t, rec.ID, 32)

	want := map[string]any{"filter": map[string]any{"ts": "2024-01-01T00:00:00.000Z"}}
	if diff := cmp.Diff(want, rec.Cmd); diff != "" {
		t.Errorf("cmd mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_VerbTable(t *testing.T) {
	tests := []struct {
		verb string
		want Op
		skip bool
	}{
		{verb: "find", want: OpFind},
		{verb: "update", want: OpUpdate},
		{verb: "count", want: OpCount},
		{verb: "getMore", want: OpGetMore},
		{verb: "insert", want: OpInsert},
		{verb: "delete", want: OpDelete},
		{verb: "aggregate", want: OpAggregate},
		{verb: "findAndModify", want: OpFindAndModify},
		{verb: "explain", skip: true},
		{verb: "Find", skip: true},
		{verb: "isMaster", skip: true},
		{verb: "", skip: true},
	}

	n := utcNormalizer()
	for _, tt := range tests {
		t.Run(tt.verb, func(t *testing.T) {
			raw := rawRecord(t, `{"command":"`+tt.verb+`","args":{},"ns":"db.coll"}`, "db", "2024-01-01T00:00:05Z")
			rec, err := n.Normalize(raw)
			if tt.skip {
				assert.True(t, errors.Is(err, ErrSkipRecord), "expected skip, got %v", err)
				assert.Nil(t, rec)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Op)
		})
	}
}

func TestNormalize_NamespaceSplitsOnFirstDot(t *testing.T) {
	tests := []struct {
		ns       string
		wantColl string
	}{
		{ns: "db1.sub.coll", wantColl: "sub.coll"},
		{ns: "db1.users", wantColl: "users"},
		{ns: "db1", wantColl: ""},
		{ns: "db1.", wantColl: ""},
	}
	n := utcNormalizer()
	for _, tt := range tests {
		t.Run(tt.ns, func(t *testing.T) {
			raw := rawRecord(t, `{"command":"insert","args":{},"ns":"`+tt.ns+`"}`, "authoritative", "2024-01-01T00:00:05Z")
			rec, err := n.Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.wantColl, rec.Coll)
			assert.Equal(t, tt.ns, rec.NS)
			assert.Equal(t, "authoritative", rec.DB, "db must come from DBName, not ns")
		})
	}
}

func TestNormalize_NonStringVerbIsSkipped(t *testing.T) {
	tests := map[string]string{
		"number": `5`,
		"object": `{"x":1}`,
		"array":  `["find"]`,
		"null":   `null`,
		"bool":   `true`,
	}
	n := utcNormalizer()
	for name, cmd := range tests {
		t.Run(name, func(t *testing.T) {
			raw := rawRecord(t, `{"command":`+cmd+`,"args":{},"ns":"db.coll"}`, "db", "2024-01-01T00:00:05Z")
			rec, err := n.Normalize(raw)
			assert.True(t, errors.Is(err, ErrSkipRecord), "expected skip, got %v", err)
			assert.Nil(t, rec)
		})
	}
}

func TestNormalize_MalformedSyntaxIsHardError(t *testing.T) {
	tests := map[string]string{
		"truncated":        `{"command":"find",`,
		"trailing garbage": `{"command":"find","args":{},"ns":"db.coll"} trailing`,
		"second document":  `{"command":"find","args":{},"ns":"db.coll"}{}`,
	}
	n := utcNormalizer()
	for name, syntax := range tests {
		t.Run(name, func(t *testing.T) {
			raw := rawRecord(t, syntax, "db", "2024-01-01T00:00:05Z")
			rec, err := n.Normalize(raw)
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrSkipRecord))
			assert.Nil(t, rec)
		})
	}
}

func TestNormalize_TrailingWhitespaceAccepted(t *testing.T) {
	raw := rawRecord(t, "{\"command\":\"find\",\"args\":{},\"ns\":\"db.coll\"}\n ", "db", "2024-01-01T00:00:05Z")
	rec, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, OpFind, rec.Op)
}

func TestNormalize_InvalidExecuteTimeYieldsNullTs(t *testing.T) {
	raw := rawRecord(t, `{"command":"count","args":{},"ns":"db.c"}`, "db", "not a time")
	rec, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Nil(t, rec.Ts)

	line, err := Encode(rec)
	require.NoError(t, err)
	assert.Contains(t, string(line), `"ts":null`)
}

func TestNormalize_IDHashesReceivedBytes(t *testing.T) {
	input := `{ "DBName": "db", "Syntax": "{\"command\":\"find\",\"args\":{},\"ns\":\"db.c\"}", "ExecuteTime": "2024-01-01T00:00:05Z", "ThreadID": "140" }`
	var raw RawAuditRecord
	require.NoError(t, json.Unmarshal([]byte(input), &raw))

	var compact bytes.Buffer
	require.NoError(t, json.Compact(&compact, []byte(input)))
	sum := md5.Sum(compact.Bytes())

	rec, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), rec.ID)

	again, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	other := rawRecord(t, raw.Syntax, raw.DBName, "2024-01-01T00:00:06Z")
	rec2, err := utcNormalizer().Normalize(other)
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, rec2.ID)
}

func TestNormalize_IDForUndecodedRecord(t *testing.T) {
	raw := RawAuditRecord{
		DBName:      "db",
		Syntax:      `{"command":"find","args":{},"ns":"db.c"}`,
		ExecuteTime: "2024-01-01T00:00:05Z",
	}
	rec, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, rec.ID, 32)
}

func TestNormalize_PreservesNumbersAndNonStrings(t *testing.T) {
	raw := rawRecord(t,
		`{"command":"update","args":{"limit":9007199254740993,"multi":true,"q":null,"ratio":1.5,"tags":["a","b"]},"ns":"db.c"}`,
		"db", "2024-01-01T00:00:05Z")
	rec, err := utcNormalizer().Normalize(raw)
	require.NoError(t, err)

	line, err := Encode(rec)
	require.NoError(t, err)
	s := string(line)
	assert.Contains(t, s, `"limit":9007199254740993`)
	assert.Contains(t, s, `"multi":true`)
	assert.Contains(t, s, `"q":null`)
	assert.Contains(t, s, `"ratio":1.5`)
	assert.Contains(t, s, `"tags":["a","b"]`)
}

func TestEncode_FieldOrderAndNoHTMLEscape(t *testing.T) {
	ts := int64(1704067205000)
	rec := &OperationRecord{
		ID:   "abc",
		Op:   OpFind,
		DB:   "db",
		Coll: "c",
		Cmd:  map[string]any{"filter": map[string]any{"$where": "a < b && c > d"}},
		NS:   "db.c",
		Ts:   &ts,
	}
	line, err := Encode(rec)
	require.NoError(t, err)

	s := string(line)
	assert.True(t, strings.HasSuffix(s, "\n"))
	assert.Equal(t, 1, strings.Count(s, "\n"))
	assert.Contains(t, s, `a < b && c > d`)

	keys := []string{`"id"`, `"op"`, `"db"`, `"coll"`, `"cmd"`, `"ns"`, `"ts"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(s, k)
		require.Greater(t, idx, last, "key %s out of order in %s", k, s)
		last = idx
	}
}
