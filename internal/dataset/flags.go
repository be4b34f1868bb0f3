package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/HarborC/kalibrlib/internal/models"
)

// WindowFlag parses a "start,end" seconds pair from the command line.
// Window stays nil until the flag is set.
type WindowFlag struct {
	Window *models.TimeWindow
}

func (f *WindowFlag) String() string {
	if f == nil || f.Window == nil {
		return ""
	}
	return strconv.FormatFloat(f.Window.Start, 'g', -1, 64) + "," + strconv.FormatFloat(f.Window.End, 'g', -1, 64)
}

func (f *WindowFlag) Set(s string) error {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return fmt.Errorf("want start,end in seconds, got %q", s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	f.Window = &models.TimeWindow{Start: start, End: end}
	return nil
}
