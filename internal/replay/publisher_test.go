package replay

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/HarborC/kalibrlib/internal/models"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	sent  []published
	token *fakeToken
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{}
}

type nopLogger struct{ warnings int }

func (l *nopLogger) Infof(string, ...interface{}) {}
func (l *nopLogger) Warnf(string, ...interface{}) { l.warnings++ }

// records yields samples at the given nanosecond stamps; a negative stamp
// yields a decode error instead.
func records(stamps ...int64) iter.Seq2[models.ImuRecord, error] {
	return func(yield func(models.ImuRecord, error) bool) {
		for i, ts := range stamps {
			if ts < 0 {
				if !yield(models.ImuRecord{}, errors.New("bad payload")) {
					return
				}
				continue
			}
			rec := models.ImuRecord{
				Stamp:           models.TimeFromNanos(ts),
				AngularVelocity: models.Vector3{X: float64(i)},
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func newTestPublisher(t *testing.T, client Client, opts Options) (*Publisher, *[]time.Duration) {
	t.Helper()
	if opts.Topic == "" {
		opts.Topic = "kalibr/imu"
	}
	opts.Logger = &nopLogger{}
	p, err := NewPublisher(client, opts)
	require.NoError(t, err)
	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return p, &waits
}

func TestPublisherPublishesJSON(t *testing.T) {
	client := &fakeClient{}
	p, waits := newTestPublisher(t, client, Options{QoS: 1, Retained: true})

	stats, err := p.Run(context.Background(), records(1_000_000_000, 1_005_000_000, 1_010_000_000))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Published)
	assert.Empty(t, *waits, "no pacing without a speed")

	require.Len(t, client.sent, 3)
	assert.Equal(t, "kalibr/imu", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)
	assert.True(t, client.sent[0].retained)

	var msg Message
	require.NoError(t, json.Unmarshal(client.sent[1].payload, &msg))
	assert.Equal(t, 1, msg.Seq)
	assert.Equal(t, int64(1_005_000_000), msg.StampNanos)
	assert.Equal(t, models.Time{Sec: 1, Nsec: 5_000_000}, msg.Stamp)
	assert.Equal(t, 1.0, msg.AngularVelocity.X)
}

func TestPublisherPacing(t *testing.T) {
	client := &fakeClient{}
	p, waits := newTestPublisher(t, client, Options{Speed: 2})

	_, err := p.Run(context.Background(), records(0, 10_000_000, 10_000_000, 30_000_000))
	require.NoError(t, err)
	// Equal stamps are published back to back.
	assert.Equal(t, []time.Duration{5 * time.Millisecond, 10 * time.Millisecond}, *waits)
}

func TestPublisherSkipsDecodeErrors(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestPublisher(t, client, Options{})

	stats, err := p.Run(context.Background(), records(1, -1, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Published)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, p.opts.Logger.(*nopLogger).warnings)
}

func TestPublisherStopsOnFailure(t *testing.T) {
	failing := &fakeClient{token: &fakeToken{err: errors.New("not connected")}}
	p, _ := newTestPublisher(t, failing, Options{})
	stats, err := p.Run(context.Background(), records(1, 2))
	assert.ErrorContains(t, err, "not connected")
	assert.Zero(t, stats.Published)
	assert.Len(t, failing.sent, 1)

	slow := &fakeClient{token: &fakeToken{timeout: true}}
	p, _ = newTestPublisher(t, slow, Options{})
	_, err = p.Run(context.Background(), records(1))
	assert.ErrorIs(t, err, ErrPublishTimeout)
}

func TestPublisherCancelled(t *testing.T) {
	client := &fakeClient{}
	p, _ := newTestPublisher(t, client, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, records(1, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.sent)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestNewPublisherValidates(t *testing.T) {
	_, err := NewPublisher(&fakeClient{}, Options{})
	assert.Error(t, err)
	_, err = NewPublisher(&fakeClient{}, Options{Topic: "t", QoS: 3})
	assert.Error(t, err)
	_, err = NewPublisher(&fakeClient{}, Options{Topic: "t", Speed: -1})
	assert.Error(t, err)

	p, err := NewPublisher(&fakeClient{}, Options{Topic: "t"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPublishTimeout, p.opts.Timeout)
}
