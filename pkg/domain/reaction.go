package domain

// ToggleAction names the outcome of a reaction toggle.
type ToggleAction string

const (
	ToggleAdded   ToggleAction = "added"
	ToggleRemoved ToggleAction = "removed"
	ToggleChanged ToggleAction = "changed"
)

// ReactionState is the per-(confession, user) reaction state: either no
// live reaction, or exactly one with a kind.
type ReactionState struct {
	Present bool
	Kind    ReactionKind
}

// ToggleTransition describes what a toggle does to the state and to the
// confession's counters. Deltas only ever touch one or two kinds.
type ToggleTransition struct {
	Action ToggleAction
	Next   ReactionState
	Deltas map[ReactionKind]int
}

// Toggle computes the transition for a requested kind against the current
// state. It is pure: the transactional commit applies the result.
//
//	absent            -> added (create, +1 requested)
//	present same kind -> removed (delete, -1 requested)
//	present other     -> changed (update, -1 old, +1 requested)
func Toggle(state ReactionState, requested ReactionKind) ToggleTransition {
	if !state.Present {
		return ToggleTransition{
			Action: ToggleAdded,
			Next:   ReactionState{Present: true, Kind: requested},
			Deltas: map[ReactionKind]int{requested: 1},
		}
	}
	if state.Kind == requested {
		return ToggleTransition{
			Action: ToggleRemoved,
			Next:   ReactionState{},
			Deltas: map[ReactionKind]int{requested: -1},
		}
	}
	return ToggleTransition{
		Action: ToggleChanged,
		Next:   ReactionState{Present: true, Kind: requested},
		Deltas: map[ReactionKind]int{state.Kind: -1, requested: 1},
	}
}
