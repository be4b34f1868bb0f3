// Command aprilgrid writes an AprilGrid calibration target description.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/HarborC/kalibrlib/internal/target"
)

func main() {
	grid := target.DefaultAprilGrid()
	var output string

	flag.StringVar(&output, "output", "", "output YAML path (required)")
	flag.StringVar(&output, "o", "", "shorthand for -output")
	flag.IntVar(&grid.TagRows, "tag-rows", grid.TagRows, "number of tag rows")
	flag.IntVar(&grid.TagRows, "r", grid.TagRows, "shorthand for -tag-rows")
	flag.IntVar(&grid.TagCols, "tag-cols", grid.TagCols, "number of tag columns")
	flag.IntVar(&grid.TagCols, "c", grid.TagCols, "shorthand for -tag-cols")
	flag.Float64Var(&grid.TagSize, "tag-size", grid.TagSize, "tag edge length in meters")
	flag.Float64Var(&grid.TagSize, "s", grid.TagSize, "shorthand for -tag-size")
	flag.Float64Var(&grid.TagSpacing, "tag-spacing", grid.TagSpacing, "gap between tags as a fraction of the tag size (0..1)")
	flag.Float64Var(&grid.TagSpacing, "p", grid.TagSpacing, "shorthand for -tag-spacing")
	flag.Parse()

	if output == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := grid.WriteYAML(output); err != nil {
		fmt.Fprintf(os.Stderr, "aprilgrid: %v\n", err)
		os.Exit(1)
	}

	w, h := grid.Size()
	fmt.Printf("AprilGrid written to %s\n", output)
	fmt.Printf("     tagRows: %d\n", grid.TagRows)
	fmt.Printf("     tagCols: %d\n", grid.TagCols)
	fmt.Printf("     tagSize: %g\n", grid.TagSize)
	fmt.Printf("     tagSpacing: %g\n", grid.TagSpacing)
	fmt.Printf("     board: %.4f x %.4f m\n", w, h)
}
