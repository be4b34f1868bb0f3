package dataset

import (
	"math/rand/v2"

	"github.com/HarborC/kalibrlib/internal/models"
)

// ImuReader serves the IMU samples of one container channel in time order.
type ImuReader struct {
	data    *channelData
	decoder *ImuDecoder
}

// OpenImuReader opens the container at path and indexes opts.Channel.
func OpenImuReader(path string, opts Options) (*ImuReader, error) {
	return openSource(path, opts, NewImuReader)
}

// NewImuReader indexes opts.Channel of src. The reader takes ownership of
// src and closes it if construction fails.
func NewImuReader(src Source, opts Options) (*ImuReader, error) {
	data, err := loadChannel(src, opts, "ImuReader")
	if err != nil {
		src.Close()
		return nil, err
	}
	return &ImuReader{data: data, decoder: NewImuDecoder()}, nil
}

// Channel returns the channel being read.
func (r *ImuReader) Channel() string { return r.data.channel }

// Len returns the number of samples left after filtering.
func (r *ImuReader) Len() int { return len(r.data.indices) }

// Reports returns one report per filter stage that ran.
func (r *ImuReader) Reports() []models.FilterReport {
	return append([]models.FilterReport(nil), r.data.reports...)
}

// At decodes the i-th sample in time order.
func (r *ImuReader) At(i int) (models.ImuRecord, error) {
	e, err := r.data.entryAt(i)
	if err != nil {
		return models.ImuRecord{}, err
	}
	return r.decoder.Decode(e)
}

// ReadDataset returns a sequence over all samples in time order.
func (r *ImuReader) ReadDataset() *Sequence[models.ImuRecord] {
	return newSequence(append([]int(nil), r.data.indices...), r.decodeEntry)
}

// ReadDatasetShuffle returns a sequence over all samples in random order.
// A nil rng uses the global source.
func (r *ImuReader) ReadDatasetShuffle(rng *rand.Rand) *Sequence[models.ImuRecord] {
	return newSequence(r.data.shuffled(rng), r.decodeEntry)
}

// Close releases the underlying container.
func (r *ImuReader) Close() error { return r.data.close() }

func (r *ImuReader) decodeEntry(i int) (models.ImuRecord, error) {
	return r.decoder.Decode(r.data.entries[i])
}
