package models

import "image"

// Time is a timestamp split into whole seconds and remainder nanoseconds.
type Time struct {
	Sec  int64 `json:"sec" msgpack:"sec"`
	Nsec int64 `json:"nsec" msgpack:"nsec"`
}

// TimeFromNanos splits a nanosecond timestamp using floor division, so
// Nsec is always in [0, 1e9).
func TimeFromNanos(ns int64) Time {
	sec := ns / 1e9
	if ns%1e9 < 0 {
		sec--
	}
	return Time{Sec: sec, Nsec: ns - sec*1e9}
}

// Nanos joins the timestamp back into nanoseconds.
func (t Time) Nanos() int64 {
	return t.Sec*1e9 + t.Nsec
}

// Vector3 is a 3-axis measurement.
type Vector3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// ImuRecord is one decoded inertial sample.
type ImuRecord struct {
	Stamp              Time    `json:"stamp" msgpack:"stamp"`
	AngularVelocity    Vector3 `json:"angularVelocity" msgpack:"angular_velocity"`
	LinearAcceleration Vector3 `json:"linearAcceleration" msgpack:"linear_acceleration"`
}

// ImageRecord is one decoded frame in canonical single-channel 8-bit form.
type ImageRecord struct {
	Stamp  Time        `json:"stamp"`
	Pixels *image.Gray `json:"-"`
}

// Height returns the number of pixel rows.
func (r ImageRecord) Height() int {
	if r.Pixels == nil {
		return 0
	}
	return r.Pixels.Rect.Dy()
}

// Width returns the number of pixel columns.
func (r ImageRecord) Width() int {
	if r.Pixels == nil {
		return 0
	}
	return r.Pixels.Rect.Dx()
}
