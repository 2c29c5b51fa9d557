package oplog

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrSkipRecord indicates the record carries a command verb that is not
// harvested. It is not a failure: callers drop the record and continue.
var ErrSkipRecord = errors.New("skip record")

// Normalizer converts raw audit records into operation records.
type Normalizer struct {
	loc *time.Location
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLocation sets the zone used to interpret zone-less timestamps and to
// render rewritten command timestamps. Default: time.Local.
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// NewNormalizer returns a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{loc: time.Local}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds the operation record for raw. It returns ErrSkipRecord
// for unrecognized verbs and a wrapped error when Syntax is not valid JSON.
func (n *Normalizer) Normalize(raw RawAuditRecord) (*OperationRecord, error) {
	dec := json.NewDecoder(strings.NewReader(raw.Syntax))
	dec.UseNumber()
	var s syntax
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode syntax: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("decode syntax: unexpected data after command document")
	}

	verb, _ := s.Command.(string)
	op, ok := LookupOp(verb)
	if !ok {
		return nil, ErrSkipRecord
	}

	id, err := recordID(raw)
	if err != nil {
		return nil, err
	}

	_, coll, _ := strings.Cut(s.NS, ".")

	return &OperationRecord{
		ID:   id,
		Op:   op,
		DB:   raw.DBName,
		Coll: coll,
		Cmd:  rewriteStrings(s.Args, n.rewriteTimestamp),
		NS:   s.NS,
		Ts:   n.epochMillis(raw.ExecuteTime),
	}, nil
}

// recordID is the hex MD5 of the serialized raw record.
func recordID(raw RawAuditRecord) (string, error) {
	b, err := raw.Serialized()
	if err != nil {
		return "", fmt.Errorf("serialize record: %w", err)
	}
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// rewriteStrings walks a decoded JSON tree and returns a copy with every
// string leaf replaced by fn(leaf). Each leaf is visited exactly once.
func rewriteStrings(v any, fn func(string) string) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = rewriteStrings(vv, fn)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = rewriteStrings(vv, fn)
		}
		return out
	case string:
		return fn(t)
	default:
		return t
	}
}

// Encode writes rec as a single JSON line without HTML escaping.
func Encode(rec *OperationRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}
