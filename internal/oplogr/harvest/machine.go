package harvest

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	stateFetching = "fetching"
	stateWaiting  = "waiting"
	stateBackoff  = "backoff"
	stateDone     = "done"

	eventPageHarvested = "page_harvested"
	eventPageFailed    = "page_failed"
	eventNextPage      = "next_page"
	eventRetryPage     = "retry_page"
	eventExhausted     = "exhausted"
)

// newMachine builds the harvest lifecycle:
//
//	fetching --page_harvested--> waiting --next_page--> fetching
//	fetching --page_failed--> backoff --retry_page--> fetching
//	fetching --exhausted--> done
func newMachine(log *zap.SugaredLogger) *fsm.FSM {
	return fsm.NewFSM(
		stateFetching,
		fsm.Events{
			{Name: eventPageHarvested, Src: []string{stateFetching}, Dst: stateWaiting},
			{Name: eventNextPage, Src: []string{stateWaiting}, Dst: stateFetching},
			{Name: eventPageFailed, Src: []string{stateFetching}, Dst: stateBackoff},
			{Name: eventRetryPage, Src: []string{stateBackoff}, Dst: stateFetching},
			{Name: eventExhausted, Src: []string{stateFetching}, Dst: stateDone},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugw("harvest transition", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}
