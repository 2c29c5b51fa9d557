// Package convert turns audit-log CSV exports into oplog records.
//
// An export row carries the database, collection, the command document as
// JSON, the operation type and the execution time in epoch milliseconds.
// Rows go through the same normalizer as harvested records so both paths
// produce identical oplog lines.
package convert

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/vaibhaw-/oplogr/internal/oplogr/logger"
	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

var requiredColumns = []string{"db", "coll", "command", "time"}

// Appender receives converted records.
type Appender interface {
	Append(rec *oplog.OperationRecord) error
}

// Options controls a conversion.
type Options struct {
	FilterDB string // keep only rows of this database when set
}

// Result tallies a conversion.
type Result struct {
	Rows     int
	Written  int
	Filtered int // rows of other databases
	Skipped  int // unrecognized verbs
	Rejected int // rows whose command could not be decoded
}

// Run reads the CSV export from r and appends one record per convertible row.
// Undecodable rows are logged and counted; a sink failure stops the run.
func Run(r io.Reader, norm *oplog.Normalizer, out Appender, opts Options) (Result, error) {
	log := logger.L()
	var res Result

	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	header, err := rdr.Read()
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return res, err
	}

	for {
		row, err := rdr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read row %d: %w", res.Rows+1, err)
		}
		res.Rows++

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return row[i]
		}

		if opts.FilterDB != "" && field("db") != opts.FilterDB {
			res.Filtered++
			continue
		}

		raw, err := toRawRecord(field("db"), field("coll"), field("command"), field("optype"), field("time"))
		if err != nil {
			log.Warnw("rejecting export row", "row", res.Rows, "err", err.Error())
			res.Rejected++
			continue
		}

		rec, err := norm.Normalize(raw)
		if errors.Is(err, oplog.ErrSkipRecord) {
			res.Skipped++
			continue
		}
		if err != nil {
			log.Warnw("rejecting export row", "row", res.Rows, "err", err.Error())
			res.Rejected++
			continue
		}
		if err := out.Append(rec); err != nil {
			return res, fmt.Errorf("append row %d: %w", res.Rows, err)
		}
		res.Written++

		if res.Rows%10000 == 0 {
			log.Infow("conversion progress", "rows", res.Rows, "written", res.Written)
		}
	}

	log.Infow("conversion finished",
		"rows", res.Rows,
		"written", res.Written,
		"filtered", res.Filtered,
		"skipped", res.Skipped,
		"rejected", res.Rejected)
	return res, nil
}

func indexColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}
	return cols, nil
}

// toRawRecord shapes an export row like a DescribeAuditRecords item. The
// command verb falls back to optype and the namespace to db.coll.
func toRawRecord(db, coll, command, optype, millis string) (oplog.RawAuditRecord, error) {
	dec := json.NewDecoder(strings.NewReader(command))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return oplog.RawAuditRecord{}, fmt.Errorf("decode command: %w", err)
	}
	if doc == nil {
		return oplog.RawAuditRecord{}, fmt.Errorf("decode command: not an object")
	}
	if verb, _ := doc["command"].(string); verb == "" {
		doc["command"] = optype
	}
	if ns, _ := doc["ns"].(string); ns == "" {
		doc["ns"] = db + "." + coll
	}
	syntax, err := json.Marshal(doc)
	if err != nil {
		return oplog.RawAuditRecord{}, fmt.Errorf("encode command: %w", err)
	}

	ms, err := strconv.ParseInt(strings.TrimSpace(millis), 10, 64)
	if err != nil {
		return oplog.RawAuditRecord{}, fmt.Errorf("parse time %q: %w", millis, err)
	}

	return oplog.RawAuditRecord{
		DBName:      db,
		TableName:   coll,
		Syntax:      string(syntax),
		ExecuteTime: time.UnixMilli(ms).UTC().Format(time.RFC3339Nano),
	}, nil
}
