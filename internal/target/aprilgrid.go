// Package target describes calibration boards.
package target

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TypeAprilGrid is the target_type value of an AprilGrid board.
const TypeAprilGrid = "aprilgrid"

// AprilGrid is a grid of AprilTags. TagSize is the tag edge in metres and
// TagSpacing the gap between tags as a fraction of TagSize. Field order is
// the key order written to YAML.
type AprilGrid struct {
	TargetType string  `yaml:"target_type" json:"targetType"`
	TagCols    int     `yaml:"tagCols" json:"tagCols"`
	TagRows    int     `yaml:"tagRows" json:"tagRows"`
	TagSize    float64 `yaml:"tagSize" json:"tagSize"`
	TagSpacing float64 `yaml:"tagSpacing" json:"tagSpacing"`
}

// DefaultAprilGrid returns the 6x6 board with 27.5 mm tags.
func DefaultAprilGrid() AprilGrid {
	return AprilGrid{
		TargetType: TypeAprilGrid,
		TagCols:    6,
		TagRows:    6,
		TagSize:    0.0275,
		TagSpacing: 0.3,
	}
}

// Validate checks the board geometry.
func (g AprilGrid) Validate() error {
	var errs []error
	if g.TargetType != TypeAprilGrid {
		errs = append(errs, fmt.Errorf("target_type must be %q, got %q", TypeAprilGrid, g.TargetType))
	}
	if g.TagCols <= 0 || g.TagRows <= 0 {
		errs = append(errs, fmt.Errorf("grid must have at least one tag, got %dx%d", g.TagCols, g.TagRows))
	}
	if !(g.TagSize > 0) {
		errs = append(errs, fmt.Errorf("tagSize must be positive, got %g", g.TagSize))
	}
	if !(g.TagSpacing > 0 && g.TagSpacing < 1) {
		errs = append(errs, fmt.Errorf("tagSpacing must be in (0, 1), got %g", g.TagSpacing))
	}
	return errors.Join(errs...)
}

// Size returns the board width and height in metres.
func (g AprilGrid) Size() (width, height float64) {
	gap := g.TagSize * g.TagSpacing
	width = float64(g.TagCols)*g.TagSize + float64(g.TagCols-1)*gap
	height = float64(g.TagRows)*g.TagSize + float64(g.TagRows-1)*gap
	return width, height
}

// WriteYAML validates g and writes it to path.
func (g AprilGrid) WriteYAML(path string) error {
	if err := g.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshaling target: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing target: %w", err)
	}
	return nil
}

// LoadYAML reads and validates a target file. Missing keys keep their
// defaults.
func LoadYAML(path string) (AprilGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AprilGrid{}, fmt.Errorf("reading target: %w", err)
	}
	g := DefaultAprilGrid()
	if err := yaml.Unmarshal(data, &g); err != nil {
		return AprilGrid{}, fmt.Errorf("parsing target: %w", err)
	}
	if err := g.Validate(); err != nil {
		return AprilGrid{}, err
	}
	return g, nil
}
