package dataset

import (
	"fmt"
	"math"

	"github.com/HarborC/kalibrlib/internal/models"
)

// TruncateWindow keeps the ordered entries whose timestamp lies in
// [first+w.Start, first+w.End] (seconds, inclusive), where first is the
// earliest timestamp in ordered. Bounds outside the observed span are
// reported as warnings and clamped.
func TruncateWindow(ordered []int, entries []models.ChannelEntry, w models.TimeWindow) ([]int, models.FilterReport, error) {
	report := models.FilterReport{Stage: models.FilterStageWindow, Total: len(ordered)}
	if math.IsNaN(w.Start) || math.IsNaN(w.End) || w.Start >= w.End {
		return nil, report, &InvalidWindowError{Window: w}
	}
	if len(ordered) == 0 {
		return []int{}, report, nil
	}

	first, last := entries[ordered[0]].Timestamp, entries[ordered[0]].Timestamp
	for _, i := range ordered {
		ts := entries[i].Timestamp
		first = min(first, ts)
		last = max(last, ts)
	}
	span := last - first
	length := float64(span) * 1e-9

	if w.Start < 0 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("start time of %g s is smaller than 0", w.Start))
	}
	if w.End > length {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("end time of %g s is bigger than the total length of %g s", w.End, length))
	}

	lo, hi := secondsToNanos(w.Start), secondsToNanos(w.End)
	kept := make([]int, 0, len(ordered))
	for _, i := range ordered {
		off := entries[i].Timestamp - first
		if off >= lo && off <= hi {
			kept = append(kept, i)
		}
	}

	report.Kept = len(kept)
	report.Truncated = len(ordered) - len(kept)
	if len(kept) > 0 {
		report.EffectiveStart = first + min(max(lo, 0), span)
		report.EffectiveEnd = first + min(max(hi, 0), span)
	}
	return kept, report, nil
}

// TruncateFrequency decimates ordered entries so that consecutive kept
// entries are at least 1/hz seconds apart. The scan is greedy: the first
// entry is kept, and each later one is kept only if it is far enough from
// the last kept entry.
func TruncateFrequency(ordered []int, entries []models.ChannelEntry, hz float64) ([]int, models.FilterReport, error) {
	report := models.FilterReport{Stage: models.FilterStageFrequency, Total: len(ordered)}
	if !(hz > 0) || math.IsInf(hz, 1) {
		return nil, report, &InvalidFrequencyError{Frequency: hz}
	}

	kept := make([]int, 0, len(ordered))
	var anchor int64
	for n, i := range ordered {
		ts := entries[i].Timestamp
		if n == 0 || float64(ts-anchor)*hz >= 1e9 {
			kept = append(kept, i)
			anchor = ts
		}
	}

	report.Kept = len(kept)
	report.Truncated = len(ordered) - len(kept)
	return kept, report, nil
}

// secondsToNanos converts an offset in seconds, saturating at the int64
// range.
func secondsToNanos(s float64) int64 {
	ns := math.Round(s * 1e9)
	switch {
	case ns >= math.MaxInt64:
		return math.MaxInt64
	case ns <= math.MinInt64:
		return math.MinInt64
	}
	return int64(ns)
}
