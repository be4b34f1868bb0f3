// Command replay publishes the IMU samples of a container to an MQTT
// topic at their recorded rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/HarborC/kalibrlib/internal/config"
	"github.com/HarborC/kalibrlib/internal/dataset"
	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/replay"
)

func main() {
	bag := flag.String("bag", "", "source container (required)")
	channel := flag.String("channel", "", "IMU channel (default from config)")
	configPath := flag.String("config", "", "optional YAML config supplying broker defaults")
	broker := flag.String("broker", "", "MQTT broker URL")
	topic := flag.String("topic", "", "MQTT topic")
	speed := flag.Float64("speed", -1, "playback speed; 0 publishes as fast as possible")
	qos := flag.Int("qos", -1, "MQTT QoS (0-2)")
	freq := flag.Float64("freq", 0, "maximum sample rate in Hz (0 keeps everything)")
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

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			logger.Fatalf("loading config: %v", err)
		}
	}
	rc := cfg.Replay
	if *broker != "" {
		rc.Broker = *broker
	}
	if *topic != "" {
		rc.Topic = *topic
	}
	if *speed >= 0 {
		rc.Speed = *speed
	}
	if *qos >= 0 {
		rc.QoS = byte(*qos)
	}
	if *channel == "" {
		*channel = cfg.Dataset.ImuChannel
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

	client, err := replay.Connect(rc.Broker, rc.ClientID, replay.DefaultPublishTimeout)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer client.Disconnect(250)

	pub, err := replay.NewPublisher(client, replay.Options{
		Topic: rc.Topic,
		QoS:   rc.QoS,
		Speed: rc.Speed,
	})
	if err != nil {
		logger.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Infof("replaying %d samples from %s to %s on %s", r.Len(), *channel, rc.Topic, rc.Broker)
	stats, err := pub.Run(ctx, r.ReadDataset().All())
	fmt.Printf("published %d, skipped %d in %s\n", stats.Published, stats.Skipped, stats.Elapsed)
	if err != nil && ctx.Err() == nil {
		logger.Fatalf("replay: %v", err)
	}
}
