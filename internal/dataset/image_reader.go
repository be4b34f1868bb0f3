package dataset

import (
	"math/rand/v2"

	"github.com/HarborC/kalibrlib/internal/models"
)

// ImageReader serves the image frames of one container channel in time order.
type ImageReader struct {
	data    *channelData
	decoder *ImageDecoder
}

// OpenImageReader opens the container at path and indexes opts.Channel.
func OpenImageReader(path string, opts Options) (*ImageReader, error) {
	return openSource(path, opts, NewImageReader)
}

// NewImageReader indexes opts.Channel of src. The reader takes ownership of
// src and closes it if construction fails.
func NewImageReader(src Source, opts Options) (*ImageReader, error) {
	data, err := loadChannel(src, opts, "ImageReader")
	if err != nil {
		src.Close()
		return nil, err
	}
	return &ImageReader{data: data, decoder: NewImageDecoder()}, nil
}

// Channel returns the channel being read.
func (r *ImageReader) Channel() string { return r.data.channel }

// Len returns the number of frames left after filtering.
func (r *ImageReader) Len() int { return len(r.data.indices) }

// Reports returns one report per filter stage that ran.
func (r *ImageReader) Reports() []models.FilterReport {
	return append([]models.FilterReport(nil), r.data.reports...)
}

// At decodes the i-th frame in time order.
func (r *ImageReader) At(i int) (models.ImageRecord, error) {
	e, err := r.data.entryAt(i)
	if err != nil {
		return models.ImageRecord{}, err
	}
	return r.decoder.Decode(e)
}

// ReadDataset returns a sequence over all frames in time order.
func (r *ImageReader) ReadDataset() *Sequence[models.ImageRecord] {
	return newSequence(append([]int(nil), r.data.indices...), r.decodeEntry)
}

// ReadDatasetShuffle returns a sequence over all frames in random order.
// A nil rng uses the global source.
func (r *ImageReader) ReadDatasetShuffle(rng *rand.Rand) *Sequence[models.ImageRecord] {
	return newSequence(r.data.shuffled(rng), r.decodeEntry)
}

// Close releases the underlying container.
func (r *ImageReader) Close() error { return r.data.close() }

func (r *ImageReader) decodeEntry(i int) (models.ImageRecord, error) {
	return r.decoder.Decode(r.data.entries[i])
}
