package domain

// transitions enumerates the legal status edges. A pending membership
// that never completes payment is abandoned or disabled, never
// cancelled or expired.
var transitions = map[Status][]Status{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusActive, StatusCancelled, StatusExpired},
	StatusCancelled: {StatusActive, StatusExpired},
	StatusExpired:   {StatusActive},
}

// CanTransition reports whether moving from one status to another is a
// legal edge. Renewal re-enters active from any non-pending state.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
