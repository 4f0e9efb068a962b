package models

// Stats summarizes the registry for dashboards.
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	Frozen       int            `json:"frozen"`
	PendingMints int            `json:"pending_mints"`
}

// StatusCount is the number of properties in one status, split by the
// frozen gate.
type StatusCount struct {
	Status Status
	Frozen bool
	Count  int
}

// NewStats folds grouped counts into Stats. Every status is reported, with
// zero for those that have no properties.
func NewStats(counts []StatusCount, pendingMints int) Stats {
	st := Stats{
		ByStatus:     make(map[string]int, len(statusNames)),
		PendingMints: pendingMints,
	}
	for _, name := range statusNames {
		st.ByStatus[name] = 0
	}
	for _, c := range counts {
		st.Total += c.Count
		st.ByStatus[c.Status.String()] += c.Count
		if c.Frozen {
			st.Frozen += c.Count
		}
	}
	return st
}
