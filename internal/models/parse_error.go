package models

// ParseError describes one writer-side input row or file that was skipped.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}
