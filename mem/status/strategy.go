package status

// State is the generic strategy lifecycle. A strategy is constructed in
// StateInitialized, serves requests only in StateActive, and refuses all
// work in StateError. StateTransitioning marks an in-progress change and
// is a legal intermediate hop between any two other states.
type State uint32

const (
	StateInitialized State = iota
	StateActive
	StateError
	StateTransitioning
)

// strategyMatrix has no self-transitions; TRANSITIONING is reachable
// from and leads to every other state.
var strategyMatrix = [][]bool{
	//                    INIT   ACTIVE ERROR  TRANS
	/* INITIALIZED   */ {false, true, true, true},
	/* ACTIVE        */ {false, false, true, true},
	/* ERROR         */ {true, true, false, true},
	/* TRANSITIONING */ {true, true, true, false},
}

// StrategyRules returns the rule set shared by every allocation
// strategy's lifecycle tracker.
func StrategyRules() Rules[State] {
	return Rules[State]{
		Initial: StateInitialized,
		Failure: StateError,
		Matrix:  strategyMatrix,
		Name:    func(s State) string { return s.String() },
	}
}

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "INITIALIZED"
	case StateActive:
		return "ACTIVE"
	case StateError:
		return "ERROR"
	case StateTransitioning:
		return "TRANSITIONING"
	default:
		return "UNKNOWN"
	}
}

// IsErrorState reports whether s is the error state.
func IsErrorState(s State) bool {
	return s == StateError
}

// RequiresRecovery reports whether s needs caller intervention before
// the component can serve requests again.
func RequiresRecovery(s State) bool {
	return s == StateError || s == StateTransitioning
}

// ValidTransition reports whether the strategy matrix allows from -> to.
func ValidTransition(from, to State) bool {
	return StrategyRules().allows(from, to)
}
