package projection

// TransitionHistory maintains an in-memory queryable history of position
// transitions, used by the query service for recent-activity lookups without
// a Postgres round trip.
type TransitionHistory struct {
	entries []TransitionEntry
	limit   int
}

func NewTransitionHistory(limit int) *TransitionHistory {
	if limit <= 0 {
		limit = 10_000
	}
	return &TransitionHistory{
		entries: make([]TransitionEntry, 0),
		limit:   limit,
	}
}

// Add records a transition, evicting the oldest entries past the cap.
func (p *TransitionHistory) Add(entry TransitionEntry) {
	p.entries = append(p.entries, entry)
	if len(p.entries) > p.limit {
		p.entries = p.entries[len(p.entries)-p.limit:]
	}
}

// QueryByAddress returns the most recent transitions for an address, newest
// first.
func (p *TransitionHistory) QueryByAddress(address string, limit int) []TransitionEntry {
	result := make([]TransitionEntry, 0)
	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Address == address {
			result = append(result, p.entries[i])
		}
	}
	return result
}
