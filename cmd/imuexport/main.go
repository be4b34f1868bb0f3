// Command imuexport writes the IMU samples of a container to a DuckDB
// database with one row per sample.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/export"
	"github.com/HarborC/kalibrlib/internal/logging"
)

func main() {
	bag := flag.String("bag", "", "source container (required)")
	channel := flag.String("channel", "/imu", "IMU channel")
	out := flag.String("out", "", "output database (default: <bag>.imu.duckdb)")
	freq := flag.Float64("freq", 0, "maximum sample rate in Hz (0 keeps everything)")
	threads := flag.Int("threads", 4, "DuckDB worker threads")
	var window dataset.WindowFlag
	flag.Var(&window, "window", "time window \"start,end\" in seconds after the first message")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.SetLevel(*logLevel)
	logger := logging.L()

	if *bag == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = strings.TrimSuffix(*bag, ".kbag") + ".imu.duckdb"
	}

	r, err := dataset.OpenImuReader(*bag, dataset.Options{
		Channel:   *channel,
		Window:    window.Window,
		Frequency: *freq,
	})
	if err != nil {
		logger.Fatalf("opening %s: %v", *channel, err)
	}
	defer r.Close()

	store, err := export.NewImuStore(*out, export.StoreOptions{Threads: *threads})
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := export.WriteAll(ctx, store, r.ReadDataset().All()); err != nil {
		store.Close()
		os.Remove(*out)
		logger.Fatalf("exporting: %v", err)
	}
	first, last, ok, err := store.TimeRange(ctx)
	if err != nil {
		logger.Warnf("reading time range: %v", err)
	}
	count, _ := store.Count(ctx)
	if err := store.Close(); err != nil {
		logger.Fatalf("closing %s: %v", *out, err)
	}

	fmt.Printf("%d samples written to %s\n", count, *out)
	if ok {
		fmt.Printf("  span: %d .. %d ns (%.3f s)\n", first, last, float64(last-first)/1e9)
	}
}
