// Package replay publishes recorded IMU samples to an MQTT broker, either
// as fast as possible or paced like the original recording.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/HarborC/kalibrlib/internal/logging"
	"github.com/HarborC/kalibrlib/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishTimeout bounds the wait for one broker acknowledgement.
const DefaultPublishTimeout = 5 * time.Second

// ErrPublishTimeout is returned when the broker does not acknowledge a
// publish in time.
var ErrPublishTimeout = errors.New("publish timed out")

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Logger is the subset of the shared logger the publisher uses.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Options configures a Publisher.
type Options struct {
	Topic    string
	QoS      byte
	Retained bool
	// Speed scales the recorded gaps between samples: 2 replays twice as
	// fast. 0 disables pacing.
	Speed   float64
	Timeout time.Duration
	Logger  Logger
}

// Message is the JSON payload of one sample.
type Message struct {
	Seq                int            `json:"seq"`
	Stamp              models.Time    `json:"stamp"`
	StampNanos         int64          `json:"stampNs"`
	AngularVelocity    models.Vector3 `json:"angularVelocity"`
	LinearAcceleration models.Vector3 `json:"linearAcceleration"`
}

// Stats summarizes a replay.
type Stats struct {
	Published int           `json:"published"`
	Skipped   int           `json:"skipped"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Publisher replays IMU sequences onto one topic.
type Publisher struct {
	client Client
	opts   Options
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPublisher creates a publisher over an already connected client.
func NewPublisher(client Client, opts Options) (*Publisher, error) {
	if opts.Topic == "" {
		return nil, fmt.Errorf("replay: topic required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("replay: invalid qos %d", opts.QoS)
	}
	if opts.Speed < 0 {
		return nil, fmt.Errorf("replay: negative speed %g", opts.Speed)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPublishTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("replay")
	}
	return &Publisher{client: client, opts: opts, sleep: sleepContext}, nil
}

// Run publishes every record of seq in order. Records that fail to decode
// are skipped with a warning; a failed publish or a cancelled context
// stops the replay.
func (p *Publisher) Run(ctx context.Context, seq iter.Seq2[models.ImuRecord, error]) (stats Stats, err error) {
	start := time.Now()
	defer func() { stats.Elapsed = time.Since(start) }()

	var prev int64
	n := 0
	for rec, err := range seq {
		if cerr := ctx.Err(); cerr != nil {
			return stats, cerr
		}
		if err != nil {
			p.opts.Logger.Warnf("skipping sample %d: %v", n, err)
			stats.Skipped++
			n++
			continue
		}

		stamp := rec.Stamp.Nanos()
		if p.opts.Speed > 0 && stats.Published > 0 && stamp > prev {
			wait := time.Duration(float64(stamp-prev) / p.opts.Speed)
			if err := p.sleep(ctx, wait); err != nil {
				return stats, err
			}
		}

		if err := p.publish(Message{
			Seq:                n,
			Stamp:              rec.Stamp,
			StampNanos:         stamp,
			AngularVelocity:    rec.AngularVelocity,
			LinearAcceleration: rec.LinearAcceleration,
		}); err != nil {
			return stats, fmt.Errorf("sample %d: %w", n, err)
		}
		stats.Published++
		prev = stamp
		n++
	}

	p.opts.Logger.Infof("replayed %d samples to %s (%d skipped)", stats.Published, p.opts.Topic, stats.Skipped)
	return stats, nil
}

func (p *Publisher) publish(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.opts.Topic, p.opts.QoS, p.opts.Retained, payload)
	if !token.WaitTimeout(p.opts.Timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Connect dials broker and waits up to timeout for the session.
func Connect(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connecting to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	return client, nil
}
