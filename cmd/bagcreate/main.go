// Command bagcreate packs a recording directory (imu_data.txt plus
// images/left and images/right) into a container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/HarborC/kalibrlib/internal/config"
	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/convert"
	"github.com/HarborC/kalibrlib/internal/logging"
)

func main() {
	rootDir := flag.String("root_dir", "", "directory holding imu_data.txt and images/{left,right} (required)")
	output := flag.String("output", "", "output container (default: <root_dir>/<name>.kbag)")
	configPath := flag.String("config", "", "optional YAML config supplying channel and compression defaults")
	compression := flag.String("compression", "", "chunk compression: none, lz4 or zstd")
	compressed := flag.Bool("compressed", false, "store PNG files as-is instead of raw mono8 images")
	skip := flag.Int("skip", -1, "number of leading left frames to drop (default from config, 1)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.SetLevel(*logLevel)
	logger := logging.L()

	if *rootDir == "" {
		flag.Usage()
		os.Exit(2)
	}
	root, err := filepath.Abs(*rootDir)
	if err != nil {
		logger.Fatalf("resolving %s: %v", *rootDir, err)
	}
	if _, err := os.Stat(root); err != nil {
		logger.Fatalf("dataset directory: %v", err)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			logger.Fatalf("loading config: %v", err)
		}
	}
	opts, err := cfg.ConvertOptions()
	if err != nil {
		logger.Fatalf("dataset settings: %v", err)
	}
	if *compression != "" {
		if opts.Compression, err = container.ParseCompression(*compression); err != nil {
			logger.Fatalf("%v", err)
		}
	}
	if *compressed {
		opts.Compressed = true
	}
	if *skip >= 0 {
		opts.SkipLeading = *skip
	}
	opts.Output = *output
	if opts.Output == "" {
		opts.Output = filepath.Join(root, filepath.Base(root)+".kbag")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := convert.Build(ctx, convert.RootSources(root), opts)
	if err != nil {
		logger.Fatalf("building container: %v", err)
	}

	fmt.Printf("container %s written to %s\n", report.ContainerID, report.Output)
	fmt.Printf("  IMU samples:  %d\n", report.ImuCount)
	fmt.Printf("  frame pairs:  %d\n", report.FrameCount)
	fmt.Printf("  skipped:      %d\n", len(report.Skipped))
}
