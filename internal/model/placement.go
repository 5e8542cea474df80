package model

// Placement is the computed time-grid geometry for one timed event within
// one day. All percentage values are relative to the visible hour window.
// Placements are recomputed per request and never persisted.
type Placement struct {
	Event Event `json:"event"`

	// ColumnIndex and ColumnCount describe the event's side-by-side slot
	// within its overlap cluster.
	ColumnIndex int `json:"column_index"`
	ColumnCount int `json:"column_count"`

	Top    float64 `json:"top"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`

	// StartsBeforeWindow and EndsAfterWindow flag events clamped at the
	// visible window's edges so a consumer can hint at hidden extent.
	StartsBeforeWindow bool `json:"starts_before_window"`
	EndsAfterWindow    bool `json:"ends_after_window"`
}
