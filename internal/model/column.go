package model

// Column is one aggregation unit (typically one person): the merged,
// time-sorted events of all sources configured for it. Columns are replaced
// wholesale each aggregation pass, never patched in place.
type Column struct {
	Name    string  `json:"name"`
	Events  []Event `json:"events"`
	Loading bool    `json:"loading"`
	Error   string  `json:"error,omitempty"`
}
