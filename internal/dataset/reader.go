package dataset

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
)

// Logger is the subset of the shared logger the readers use.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Options configures a dataset reader.
type Options struct {
	// Channel is required.
	Channel string
	// Window restricts the data to [Start, End] seconds after the first
	// message on the channel.
	Window *models.TimeWindow
	// Frequency caps the sample rate in Hz; 0 disables decimation.
	Frequency float64
	// Registry resolves container schemas; nil means container.NewRegistry().
	Registry *container.Registry
	// Logger receives filter diagnostics; nil means the shared logger.
	Logger Logger
}

// channelData is the indexed, ordered and filtered state both readers
// share. It owns the source until close.
type channelData struct {
	src     Source
	channel string
	entries []models.ChannelEntry
	indices []int
	reports []models.FilterReport
}

func loadChannel(src Source, opts Options, name string) (*channelData, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.New("dataset")
	}

	entries, err := Index(src, opts.Channel)
	if err != nil {
		return nil, err
	}
	d := &channelData{src: src, channel: opts.Channel, entries: entries, indices: Order(entries)}

	if opts.Window != nil {
		kept, report, err := TruncateWindow(d.indices, entries, *opts.Window)
		if err != nil {
			return nil, err
		}
		for _, w := range report.Warnings {
			logger.Warnf("%s: %s", name, w)
		}
		logger.Infof("%s: truncated %d / %d messages (window)", name, report.Truncated, report.Total)
		d.indices = kept
		d.reports = append(d.reports, report)
	}

	if opts.Frequency != 0 {
		kept, report, err := TruncateFrequency(d.indices, entries, opts.Frequency)
		if err != nil {
			return nil, err
		}
		logger.Infof("%s: truncated %d / %d messages (frequency)", name, report.Truncated, report.Total)
		d.indices = kept
		d.reports = append(d.reports, report)
	}
	return d, nil
}

// shuffled returns a shuffled copy of the index; the reader's own order is
// left untouched.
func (d *channelData) shuffled(rng *rand.Rand) []int {
	idx := append([]int(nil), d.indices...)
	swap := func(i, j int) { idx[i], idx[j] = idx[j], idx[i] }
	if rng != nil {
		rng.Shuffle(len(idx), swap)
	} else {
		rand.Shuffle(len(idx), swap)
	}
	return idx
}

func (d *channelData) entryAt(i int) (models.ChannelEntry, error) {
	if i < 0 || i >= len(d.indices) {
		return models.ChannelEntry{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(d.indices))
	}
	return d.entries[d.indices[i]], nil
}

func (d *channelData) close() error {
	if d.src == nil {
		return nil
	}
	src := d.src
	d.src = nil
	return src.Close()
}

// openSource opens path and hands it to build. build owns the source from
// then on.
func openSource[R any](path string, opts Options, build func(Source, Options) (R, error)) (R, error) {
	var zero R
	src, err := container.Open(path, opts.Registry)
	if err != nil {
		return zero, err
	}
	r, err := build(src, opts)
	if err != nil {
		var nf *ChannelNotFoundError
		if errors.As(err, &nf) && nf.Path == "" {
			nf.Path = path
		}
		return zero, err
	}
	return r, nil
}
