package harvest

import (
	"encoding/json"
	"os"

	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

// RunSummary describes one harvest run. It is appended to the run log as a
// single NDJSON line when a run log is configured.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	StartTime  string           `json:"start_time"`
	EndTime    string           `json:"end_time"`
	FirstPage  int              `json:"first_page"`
	LastPage   int              `json:"last_page"`
	Pages      int              `json:"pages"`
	Fetched    int              `json:"fetched"`
	Written    int              `json:"written"`
	Retries    int              `json:"retries"`
	ByOp       map[oplog.Op]int `json:"by_op"`
	Output     string           `json:"output,omitempty"`
	BytesOut   int64            `json:"bytes_out"`
	Status     string           `json:"status"`
	DurationMs float64          `json:"duration_ms"`
}

func appendRunLog(path string, summary RunSummary) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	return enc.Encode(summary)
}
