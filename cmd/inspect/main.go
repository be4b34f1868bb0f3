// Command inspect opens the IMU and camera channels of a container,
// prints the first samples and writes the first frames as images.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/imaging"
	"github.com/HarborC/kalibrlib/internal/logging"
)

func main() {
	bag := flag.String("bag", "", "container to inspect (required)")
	imuChannel := flag.String("imu-channel", "/imu", "IMU channel; empty to skip")
	imageChannel := flag.String("image-channel", "/camera/left", "image channel; empty to skip")
	n := flag.Int("n", 10, "number of samples to show from each channel")
	outDir := flag.String("out", "", "directory for decoded frames (.png); empty to skip writing")
	freq := flag.Float64("freq", 0, "maximum sample rate in Hz (0 keeps everything)")
	var window dataset.WindowFlag
	flag.Var(&window, "window", "time window \"start,end\" in seconds after the first message")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logging.SetLevel(*logLevel)
	logger := logging.L()

	if *bag == "" {
		flag.Usage()
		os.Exit(2)
	}

	opts := dataset.Options{Window: window.Window, Frequency: *freq}

	if *imuChannel != "" {
		opts.Channel = *imuChannel
		r, err := dataset.OpenImuReader(*bag, opts)
		if err != nil {
			logger.Fatalf("opening %s: %v", *imuChannel, err)
		}
		fmt.Printf("%s: %d samples\n", r.Channel(), r.Len())
		seq := r.ReadDataset()
		for i := 0; i < *n && seq.HasNext(); i++ {
			rec, err := seq.Next()
			if err != nil {
				r.Close()
				logger.Fatalf("decoding sample %d: %v", i, err)
			}
			fmt.Printf("  %d.%09d  gyro=(%.6f, %.6f, %.6f)  acc=(%.6f, %.6f, %.6f)\n",
				rec.Stamp.Sec, rec.Stamp.Nsec,
				rec.AngularVelocity.X, rec.AngularVelocity.Y, rec.AngularVelocity.Z,
				rec.LinearAcceleration.X, rec.LinearAcceleration.Y, rec.LinearAcceleration.Z)
		}
		r.Close()
	}

	if *imageChannel != "" {
		opts.Channel = *imageChannel
		r, err := dataset.OpenImageReader(*bag, opts)
		if err != nil {
			logger.Fatalf("opening %s: %v", *imageChannel, err)
		}
		defer r.Close()
		if *outDir != "" {
			if err := os.MkdirAll(*outDir, 0755); err != nil {
				logger.Fatalf("creating %s: %v", *outDir, err)
			}
		}
		fmt.Printf("%s: %d frames\n", r.Channel(), r.Len())
		seq := r.ReadDataset()
		for i := 0; i < *n && seq.HasNext(); i++ {
			rec, err := seq.Next()
			if err != nil {
				logger.Fatalf("decoding frame %d: %v", i, err)
			}
			fmt.Printf("  %d.%09d  %dx%d\n", rec.Stamp.Sec, rec.Stamp.Nsec, rec.Width(), rec.Height())
			if *outDir == "" {
				continue
			}
			path := filepath.Join(*outDir, fmt.Sprintf("%d.png", rec.Stamp.Nanos()))
			if err := imaging.Save(path, rec.Pixels); err != nil {
				logger.Fatalf("%v", err)
			}
		}
	}
}
