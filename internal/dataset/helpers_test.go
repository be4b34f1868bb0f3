package dataset

import (
	"bytes"
	"testing"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/stretchr/testify/require"
)

// quietLogger swallows filter diagnostics and remembers warnings.
type quietLogger struct {
	warnings []string
}

func (l *quietLogger) Infof(string, ...interface{}) {}

func (l *quietLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, format)
}

// closeTracker wraps a Source to observe Close.
type closeTracker struct {
	Source
	closed int
}

func (c *closeTracker) Close() error {
	c.closed++
	return c.Source.Close()
}

func imuMsg(ts int64, seq int) *models.ImuMsg {
	return &models.ImuMsg{
		Header:             models.Header{Seq: uint32(seq), Stamp: models.StampFromNanos(ts), FrameID: "imu"},
		AngularVelocity:    models.Vector3{X: float64(seq), Y: 0.1, Z: -0.2},
		LinearAcceleration: models.Vector3{X: 0.3, Y: -0.4, Z: 9.81},
	}
}

func monoMsg(ts int64, value uint8) *models.ImageMsg {
	return &models.ImageMsg{
		Header:   models.Header{Stamp: models.StampFromNanos(ts), FrameID: "cam"},
		Height:   2,
		Width:    3,
		Encoding: "mono8",
		Step:     3,
		Data:     bytes.Repeat([]byte{value}, 6),
	}
}

// buildSource writes a container in memory and opens it again.
func buildSource(t *testing.T, fill func(w *container.Writer)) *closeTracker {
	t.Helper()
	var buf bytes.Buffer
	w, err := container.NewWriter(&buf, container.WriterOptions{Compression: container.CompressionLZ4, ChunkSize: 512})
	require.NoError(t, err)
	fill(w)
	require.NoError(t, w.Close())

	r, err := container.NewReader(bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	return &closeTracker{Source: r}
}

// imuSource holds n samples spaced by step ns starting at 1 s.
func imuSource(t *testing.T, n int, step int64) *closeTracker {
	return buildSource(t, func(w *container.Writer) {
		c, err := w.AddConnection("/imu", models.MessageTypeImu)
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			ts := 1_000_000_000 + int64(i)*step
			require.NoError(t, w.Write(c, ts, imuMsg(ts, i)))
		}
	})
}

// entriesAt builds bare entries with the given timestamps.
func entriesAt(ts ...int64) []models.ChannelEntry {
	out := make([]models.ChannelEntry, len(ts))
	for i, v := range ts {
		out[i] = models.ChannelEntry{Channel: "/imu", Type: models.MessageTypeImu, Timestamp: v}
	}
	return out
}
