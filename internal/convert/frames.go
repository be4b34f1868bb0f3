package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HarborC/kalibrlib/internal/models"
)

// FramePair is a left/right image file pair sharing a timestamp.
type FramePair struct {
	Stamp int64 // ns, from the file stem
	Name  string
	Left  string
	Right string
}

// PairFrames lists the .png files of leftDir sorted by stem, drops the
// first skipLeading of them and pairs each remaining one with the file of
// the same name in rightDir. Frames without a right partner or with a stem
// that is not a timestamp come back as ParseErrors.
func PairFrames(leftDir, rightDir string, skipLeading int) ([]FramePair, []*models.ParseError, error) {
	dirEntries, err := os.ReadDir(leftDir)
	if err != nil {
		return nil, nil, fmt.Errorf("listing left frames: %w", err)
	}

	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		return stem(names[i]) < stem(names[j])
	})

	if skipLeading > 0 {
		names = names[min(skipLeading, len(names)):]
	}

	pairs := make([]FramePair, 0, len(names))
	skipped := make([]*models.ParseError, 0)
	for i, name := range names {
		ts, err := ParseSeconds(stem(name))
		if err != nil {
			skipped = append(skipped, &models.ParseError{Line: i + 1, Content: name, Reason: "file name is not a timestamp"})
			continue
		}
		right := filepath.Join(rightDir, name)
		if _, err := os.Stat(right); err != nil {
			skipped = append(skipped, &models.ParseError{Line: i + 1, Content: name, Reason: "right frame missing"})
			continue
		}
		pairs = append(pairs, FramePair{Stamp: ts, Name: name, Left: filepath.Join(leftDir, name), Right: right})
	}
	return pairs, skipped, nil
}

func stem(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
