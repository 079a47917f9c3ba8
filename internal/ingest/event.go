package ingest

// Event kinds as they appear on the wire.
const (
	EventKindChange  = "change"
	EventKindControl = "control"
)

// Control signal kinds emitted by the query container.
const (
	SignalBootstrapStarted   = "bootstrapStarted"
	SignalBootstrapCompleted = "bootstrapCompleted"
	SignalRunning            = "running"
	SignalStopped            = "stopped"
	SignalDeleted            = "deleted"
)

// UpdatedResult carries both images of an updated row. Before may be
// absent when the source cannot provide it.
type UpdatedResult struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ControlSignal is the payload of a control event.
type ControlSignal struct {
	Kind string `json:"kind"`
}

// Event is one inbound envelope from the change-event transport. A
// change event carries result diffs and a sequence number; a control
// event carries a signal about the query's lifecycle.
type Event struct {
	Kind           string                   `json:"kind,omitempty"`
	QueryID        string                   `json:"queryId"`
	Sequence       int64                    `json:"sequence"`
	AddedResults   []map[string]interface{} `json:"addedResults,omitempty"`
	UpdatedResults []UpdatedResult          `json:"updatedResults,omitempty"`
	DeletedResults []map[string]interface{} `json:"deletedResults,omitempty"`
	ControlSignal  *ControlSignal           `json:"controlSignal,omitempty"`
}

// IsControl reports whether the envelope is a control event. Envelopes
// without an explicit kind are treated as control when they carry a
// signal, so older producers that omit the kind still work.
func (e *Event) IsControl() bool {
	if e.Kind == EventKindControl {
		return true
	}
	return e.Kind == "" && e.ControlSignal != nil
}
