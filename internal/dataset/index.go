package dataset

import (
	"fmt"
	"sort"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/models"
)

// Source is an opened container as seen by the readers.
type Source interface {
	Connections(channel string) []container.Connection
	Messages(channel string) ([]models.ChannelEntry, error)
	Close() error
}

// Index lists every message posted to channel, in container order.
func Index(src Source, channel string) ([]models.ChannelEntry, error) {
	if channel == "" {
		return nil, &ChannelNotFoundError{}
	}
	if len(src.Connections(channel)) == 0 {
		return nil, &ChannelNotFoundError{Channel: channel}
	}
	entries, err := src.Messages(channel)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", channel, err)
	}
	return entries, nil
}

// Order returns entry positions sorted by timestamp. Entries with equal
// timestamps keep their container order.
func Order(entries []models.ChannelEntry) []int {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return entries[idx[a]].Timestamp < entries[idx[b]].Timestamp
	})
	return idx
}
