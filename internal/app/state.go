package app

// State is the phase a pipeline run is in.
type State string

const (
	StateInit        State = "init"
	StateDecoding    State = "decoding"
	StateAggregating State = "aggregating"
	StateScoring     State = "scoring"
	StateEmitting    State = "emitting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

var allStates = []string{
	string(StateInit),
	string(StateDecoding),
	string(StateAggregating),
	string(StateScoring),
	string(StateEmitting),
	string(StateDone),
	string(StateFailed),
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }
