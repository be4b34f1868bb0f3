package testutil

import (
	"bytes"
	"testing"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/models"
)

// Sample container layout written by SampleContainer.
const (
	SampleImuChannel    = "/imu"
	SampleCameraChannel = "/camera/left"
	SampleImuCount      = 100 // 200 Hz from t=1s
	SampleFrameCount    = 5   // 20 Hz, 4x3 mono8
)

// SampleContainer returns an lz4 container holding SampleImuCount IMU
// samples and SampleFrameCount frames whose pixels all equal 10*frame.
func SampleContainer(t testing.TB) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := container.NewWriter(&buf, container.WriterOptions{Compression: container.CompressionLZ4, ChunkSize: 4096})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	imu, err := w.AddConnection(SampleImuChannel, models.MessageTypeImu)
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	cam, err := w.AddConnection(SampleCameraChannel, models.MessageTypeImage)
	if err != nil {
		t.Fatalf("AddConnection: %v", err)
	}

	for i := 0; i < SampleImuCount; i++ {
		ts := int64(1_000_000_000 + i*5_000_000)
		msg := &models.ImuMsg{
			Header:             models.Header{Seq: uint32(i), Stamp: models.StampFromNanos(ts), FrameID: "imu"},
			AngularVelocity:    models.Vector3{X: float64(i), Y: 0.01, Z: -0.01},
			LinearAcceleration: models.Vector3{Z: 9.81},
		}
		if err := w.Write(imu, ts, msg); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if i%10 == 0 && i/10 < SampleFrameCount {
			frame := i / 10
			img := &models.ImageMsg{
				Header:   models.Header{Seq: uint32(frame), Stamp: models.StampFromNanos(ts), FrameID: "camera"},
				Height:   3,
				Width:    4,
				Encoding: "mono8",
				Step:     4,
				Data:     bytes.Repeat([]byte{byte(10 * frame)}, 12),
			}
			if err := w.Write(cam, ts, img); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}
