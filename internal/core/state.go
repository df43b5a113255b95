package core

import (
	"fmt"

	"github.com/OmkarTuptewar/template-generator/internal/core/model"
)

// queryState tracks one query through a batch pipeline.
type queryState int

const (
	statePending queryState = iota
	stateValidated
	stateLeakFound
	stateCorrectionSent
	stateAccepted
	// stateUnresolved is terminal: the batch degraded to ignores, or a
	// correction was rejected and the uncorrected template is kept.
	stateUnresolved
)

var stateNames = [...]string{
	statePending:        "pending",
	stateValidated:      "validated",
	stateLeakFound:      "leak_found",
	stateCorrectionSent: "correction_sent",
	stateAccepted:       "accepted",
	stateUnresolved:     "unresolved",
}

func (s queryState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var transitions = map[queryState][]queryState{
	statePending:        {stateValidated, stateUnresolved},
	stateValidated:      {stateAccepted, stateLeakFound},
	stateLeakFound:      {stateCorrectionSent},
	stateCorrectionSent: {stateAccepted, stateUnresolved},
}

func (s queryState) terminal() bool {
	return s == stateAccepted || s == stateUnresolved
}

type queryTrack struct {
	query  string
	result model.ExtractionResult
	leaks  []model.LeakedEntity
	state  queryState
}

// advance moves the track to next, rejecting transitions the pipeline
// does not define.
func (t *queryTrack) advance(next queryState) error {
	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid query state transition %s -> %s", t.state, next)
}
