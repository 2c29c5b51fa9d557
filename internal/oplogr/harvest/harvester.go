package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/vaibhaw-/oplogr/internal/oplogr/logger"
	"github.com/vaibhaw-/oplogr/internal/oplogr/oplog"
)

const (
	DefaultPageDelay    = 5 * time.Second
	DefaultBackoffDelay = 60 * time.Second
)

// Source returns one page of raw audit records. An empty page is the
// authoritative end-of-data signal.
type Source interface {
	FetchPage(ctx context.Context, page int) ([]oplog.RawAuditRecord, error)
}

// Sink receives operation records in harvest order.
type Sink interface {
	Append(rec *oplog.OperationRecord) error
}

// byteCounter is implemented by sinks that track bytes written.
type byteCounter interface {
	Written() int64
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Harvester pages through a Source, normalizes every record and appends the
// results to a Sink. Failed pages are retried forever after a fixed backoff.
type Harvester struct {
	src          Source
	sink         Sink
	norm         *oplog.Normalizer
	pageDelay    time.Duration
	backoffDelay time.Duration
	sleep        SleepFunc
	state        StateStore
	runLog       string
	output       string
	log          *zap.SugaredLogger
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithPageDelay sets the pause between successful pages. Default: 5s.
func WithPageDelay(d time.Duration) Option {
	return func(h *Harvester) { h.pageDelay = d }
}

// WithBackoffDelay sets the pause before retrying a failed page. Default: 60s.
func WithBackoffDelay(d time.Duration) Option {
	return func(h *Harvester) { h.backoffDelay = d }
}

// WithSleep replaces the context-aware timer used for both delays.
func WithSleep(fn SleepFunc) Option {
	return func(h *Harvester) { h.sleep = fn }
}

// WithNormalizer sets the record normalizer.
func WithNormalizer(n *oplog.Normalizer) Option {
	return func(h *Harvester) { h.norm = n }
}

// WithStateFile enables resuming from, and recording, the next page to fetch.
func WithStateFile(path string) Option {
	return func(h *Harvester) { h.state = StateStore{Path: path} }
}

// WithRunLog appends a RunSummary line to path when the run ends.
func WithRunLog(path string) Option {
	return func(h *Harvester) { h.runLog = path }
}

// WithOutputName labels the sink in logs and the run summary.
func WithOutputName(name string) Option {
	return func(h *Harvester) { h.output = name }
}

// New creates a Harvester.
func New(src Source, sink Sink, opts ...Option) *Harvester {
	h := &Harvester{
		src:          src,
		sink:         sink,
		norm:         oplog.NewNormalizer(),
		pageDelay:    DefaultPageDelay,
		backoffDelay: DefaultBackoffDelay,
		sleep:        sleepContext,
		log:          logger.L(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run harvests until a page comes back empty. Page failures are logged and
// retried; the only error returned is the context's, when it is cancelled.
func (h *Harvester) Run(ctx context.Context) (RunSummary, error) {
	log := h.log
	start := time.Now().UTC()

	st, err := h.state.Load()
	if err != nil {
		log.Warnw("could not load resume state, starting at page 1", "path", h.state.Path, "err", err.Error())
		st = &ResumeState{NextPage: 1}
	}
	page := st.NextPage

	summary := RunSummary{
		RunID:     uuid.NewString(),
		StartTime: start.Format(time.RFC3339),
		FirstPage: page,
		ByOp:      map[oplog.Op]int{},
		Output:    h.output,
	}
	log.Infow("starting harvest", "run_id", summary.RunID, "page", page, "output", h.output)

	machine := newMachine(log)
	var runErr error
	for runErr == nil && !machine.Is(stateDone) {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		switch machine.Current() {
		case stateFetching:
			summary.LastPage = page
			res, err := h.harvestPage(ctx, page)
			summary.Written += res.Written
			if err != nil {
				if ctx.Err() != nil {
					runErr = ctx.Err()
					break
				}
				summary.Retries++
				log.Errorw("page failed, backing off",
					"page", page,
					"written_before_failure", res.Written,
					"backoff", h.backoffDelay,
					"err", err.Error())
				runErr = h.fire(ctx, machine, eventPageFailed)
				break
			}

			summary.Fetched += res.Fetched
			res.Stats.merge(summary.ByOp)
			if res.Fetched == 0 {
				h.saveState(page)
				runErr = h.fire(ctx, machine, eventExhausted)
				break
			}
			summary.Pages++
			h.saveState(page + 1)
			runErr = h.fire(ctx, machine, eventPageHarvested)

		case stateWaiting:
			if runErr = h.sleep(ctx, h.pageDelay); runErr != nil {
				break
			}
			page++
			runErr = h.fire(ctx, machine, eventNextPage)

		case stateBackoff:
			if runErr = h.sleep(ctx, h.backoffDelay); runErr != nil {
				break
			}
			runErr = h.fire(ctx, machine, eventRetryPage)
		}
	}

	end := time.Now().UTC()
	summary.EndTime = end.Format(time.RFC3339)
	summary.DurationMs = end.Sub(start).Seconds() * 1000
	summary.Status = "done"
	if runErr != nil {
		summary.Status = "interrupted"
	}
	if bc, ok := h.sink.(byteCounter); ok {
		summary.BytesOut = bc.Written()
	}

	if h.runLog != "" {
		if err := appendRunLog(h.runLog, summary); err != nil {
			log.Errorw("failed to write run log", "path", h.runLog, "err", err.Error())
		} else {
			log.Debugw("wrote run summary", "path", h.runLog)
		}
	}

	log.Infow("harvest finished",
		"run_id", summary.RunID,
		"status", summary.Status,
		"pages", summary.Pages,
		"last_page", summary.LastPage,
		"fetched", summary.Fetched,
		"written", summary.Written,
		"retries", summary.Retries,
		"by_op", summary.ByOp,
		"bytes_out", humanize.Bytes(uint64(summary.BytesOut)),
		"duration", end.Sub(start))

	return summary, runErr
}

// harvestPage fetches one page and appends its records in order. On error
// the returned result still reports the records already appended.
func (h *Harvester) harvestPage(ctx context.Context, page int) (PageResult, error) {
	records, err := h.src.FetchPage(ctx, page)
	if err != nil {
		return PageResult{Page: page}, fmt.Errorf("fetch page %d: %w", page, err)
	}

	res := PageResult{Page: page, Fetched: len(records), Stats: newPageStats()}
	for i, raw := range records {
		rec, err := h.norm.Normalize(raw)
		if errors.Is(err, oplog.ErrSkipRecord) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("normalize record %d of page %d: %w", i, page, err)
		}
		if err := h.sink.Append(rec); err != nil {
			return res, fmt.Errorf("append record %d of page %d: %w", i, page, err)
		}
		res.Written++
		res.Stats[rec.Op]++
	}

	h.log.Infow("page harvested",
		"page", page,
		"rows", res.Fetched,
		"written", res.Written,
		"stats", res.Stats)
	return res, nil
}

func (h *Harvester) fire(ctx context.Context, machine *fsm.FSM, event string) error {
	if err := machine.Event(ctx, event); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("harvest transition %s from %s: %w", event, machine.Current(), err)
	}
	return nil
}

func (h *Harvester) saveState(next int) {
	if err := h.state.Save(ResumeState{NextPage: next, UpdatedAt: time.Now().UTC()}); err != nil {
		h.log.Warnw("failed to save resume state", "path", h.state.Path, "err", err.Error())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
