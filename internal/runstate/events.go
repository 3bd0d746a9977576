package runstate

import (
	"encoding/json"
	"fmt"
)

// EventKind tags each event variant on the wire.
type EventKind string

const (
	EventInit     EventKind = "init"
	EventRun      EventKind = "run"
	EventStage    EventKind = "stage"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// IsTerminal reports whether the kind ends a run's stream.
func (k EventKind) IsTerminal() bool {
	return k == EventComplete || k == EventError
}

// Event is a state transition published on a run's event log. Exactly one of
// the concrete variants below implements it per kind.
type Event interface {
	Kind() EventKind
	EventRunID() string
}

// Compile-time interface checks.
var (
	_ Event = InitEvent{}
	_ Event = RunEvent{}
	_ Event = StageEvent{}
	_ Event = CompleteEvent{}
	_ Event = ErrorEvent{}
)

// InitEvent carries the initial stage list of a freshly created run.
type InitEvent struct {
	RunID   string          `json:"run_id"`
	RunName string          `json:"run_name"`
	Stages  []StageSnapshot `json:"stages"`
}

// RunEvent reports a run status change.
type RunEvent struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// StageEvent carries one stage's new snapshot.
type StageEvent struct {
	RunID    string        `json:"run_id"`
	Snapshot StageSnapshot `json:"snapshot"`
}

// CompleteEvent carries the final response of a successful run.
type CompleteEvent struct {
	RunID    string      `json:"run_id"`
	Response RunResponse `json:"response"`
}

// ErrorEvent carries the failure message of a failed run.
type ErrorEvent struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

func (InitEvent) Kind() EventKind     { return EventInit }
func (RunEvent) Kind() EventKind      { return EventRun }
func (StageEvent) Kind() EventKind    { return EventStage }
func (CompleteEvent) Kind() EventKind { return EventComplete }
func (ErrorEvent) Kind() EventKind    { return EventError }

func (e InitEvent) EventRunID() string     { return e.RunID }
func (e RunEvent) EventRunID() string      { return e.RunID }
func (e StageEvent) EventRunID() string    { return e.RunID }
func (e CompleteEvent) EventRunID() string { return e.RunID }
func (e ErrorEvent) EventRunID() string    { return e.RunID }

// MarshalJSON methods add the "event" discriminator next to the variant's
// own fields.

func (e InitEvent) MarshalJSON() ([]byte, error) {
	type plain InitEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		plain
	}{EventInit, plain(e)})
}

func (e RunEvent) MarshalJSON() ([]byte, error) {
	type plain RunEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		plain
	}{EventRun, plain(e)})
}

func (e StageEvent) MarshalJSON() ([]byte, error) {
	type plain StageEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		plain
	}{EventStage, plain(e)})
}

func (e CompleteEvent) MarshalJSON() ([]byte, error) {
	type plain CompleteEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		plain
	}{EventComplete, plain(e)})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type plain ErrorEvent
	return json.Marshal(struct {
		Event EventKind `json:"event"`
		plain
	}{EventError, plain(e)})
}

// DecodeEvent parses one serialized event, dispatching on its "event" field.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Event EventKind `json:"event"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("runstate: decode event: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch head.Event {
	case EventInit:
		var v InitEvent
		err = json.Unmarshal(data, &v)
		ev = v
	case EventRun:
		var v RunEvent
		err = json.Unmarshal(data, &v)
		ev = v
	case EventStage:
		var v StageEvent
		err = json.Unmarshal(data, &v)
		ev = v
	case EventComplete:
		var v CompleteEvent
		err = json.Unmarshal(data, &v)
		ev = v
	case EventError:
		var v ErrorEvent
		err = json.Unmarshal(data, &v)
		ev = v
	default:
		return nil, fmt.Errorf("runstate: decode event: unknown kind %q", head.Event)
	}
	if err != nil {
		return nil, fmt.Errorf("runstate: decode %s event: %w", head.Event, err)
	}
	return ev, nil
}

// Envelope is an event together with its position in the run's log.
type Envelope struct {
	Seq   int
	Event Event
}
