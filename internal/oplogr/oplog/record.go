package oplog

import (
	"bytes"
	"encoding/json"
)

// RawAuditRecord is one SQLRecord item returned by DescribeAuditRecords.
// Only the fields the normalizer reads are typed; the received bytes are
// kept so the record id hashes exactly what the API sent.
type RawAuditRecord struct {
	DBName      string `json:"DBName"`
	AccountName string `json:"AccountName,omitempty"`
	HostAddress string `json:"HostAddress,omitempty"`
	TableName   string `json:"TableName,omitempty"`
	Syntax      string `json:"Syntax"`
	ExecuteTime string `json:"ExecuteTime"`

	raw []byte
}

// UnmarshalJSON decodes the record and retains its compacted JSON form.
func (r *RawAuditRecord) UnmarshalJSON(b []byte) error {
	type plain RawAuditRecord
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*r = RawAuditRecord(p)
	r.raw = buf.Bytes()
	return nil
}

// Serialized returns the JSON form used for identity hashing.
func (r RawAuditRecord) Serialized() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain RawAuditRecord
	return json.Marshal(plain(r))
}

// OperationRecord is the canonical oplog line written to the sink.
// Ts is nil when ExecuteTime could not be parsed and encodes as null.
type OperationRecord struct {
	ID   string `json:"id"`
	Op   Op     `json:"op"`
	DB   string `json:"db"`
	Coll string `json:"coll"`
	Cmd  any    `json:"cmd"`
	NS   string `json:"ns"`
	Ts   *int64 `json:"ts"`
}

// syntax is the decoded form of RawAuditRecord.Syntax.
type syntax struct {
	Command any    `json:"command"` // a verb string; anything else is skipped
	Args    any    `json:"args"`
	NS      string `json:"ns"`
}
