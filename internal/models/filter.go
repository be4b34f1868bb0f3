package models

// TimeWindow selects [Start, End] seconds relative to the first timestamp
// of a channel.
type TimeWindow struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// FilterStage names the stage that produced a FilterReport.
type FilterStage string

const (
	FilterStageWindow    FilterStage = "window"
	FilterStageFrequency FilterStage = "frequency"
)

// FilterReport describes what a filter stage dropped and why.
type FilterReport struct {
	Stage     FilterStage `json:"stage"`
	Total     int         `json:"total"`
	Kept      int         `json:"kept"`
	Truncated int         `json:"truncated"`
	// Effective bounds in nanoseconds, clamped to the observed span. Set by
	// the window stage only, and left zero when nothing is kept.
	EffectiveStart int64    `json:"effectiveStart,omitempty"`
	EffectiveEnd   int64    `json:"effectiveEnd,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}
