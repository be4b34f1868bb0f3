package models

// Wire schemas stored as msgpack payloads inside a container. Field layout
// follows the sensor_msgs definitions the calibration tooling expects.

// Stamp is the header timestamp of a message.
type Stamp struct {
	Sec     int32  `msgpack:"sec"`
	Nanosec uint32 `msgpack:"nanosec"`
}

// Header is shared by every message schema.
type Header struct {
	Seq     uint32 `msgpack:"seq"`
	Stamp   Stamp  `msgpack:"stamp"`
	FrameID string `msgpack:"frame_id"`
}

// Quaternion is an orientation in w, x, y, z order.
type Quaternion struct {
	W float64 `msgpack:"w"`
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

// ImuMsg is the sensor_msgs/msg/Imu schema.
type ImuMsg struct {
	Header                       Header     `msgpack:"header"`
	Orientation                  Quaternion `msgpack:"orientation"`
	OrientationCovariance        [9]float64 `msgpack:"orientation_covariance"`
	AngularVelocity              Vector3    `msgpack:"angular_velocity"`
	AngularVelocityCovariance    [9]float64 `msgpack:"angular_velocity_covariance"`
	LinearAcceleration           Vector3    `msgpack:"linear_acceleration"`
	LinearAccelerationCovariance [9]float64 `msgpack:"linear_acceleration_covariance"`
}

// ImageMsg is the sensor_msgs/msg/Image schema.
type ImageMsg struct {
	Header      Header `msgpack:"header"`
	Height      uint32 `msgpack:"height"`
	Width       uint32 `msgpack:"width"`
	Encoding    string `msgpack:"encoding"`
	IsBigEndian uint8  `msgpack:"is_bigendian"`
	Step        uint32 `msgpack:"step"`
	Data        []byte `msgpack:"data"`
}

// CompressedImageMsg is the sensor_msgs/msg/CompressedImage schema.
type CompressedImageMsg struct {
	Header Header `msgpack:"header"`
	Format string `msgpack:"format"`
	Data   []byte `msgpack:"data"`
}

// StampFromNanos builds a header stamp from a nanosecond timestamp.
func StampFromNanos(ns int64) Stamp {
	t := TimeFromNanos(ns)
	return Stamp{Sec: int32(t.Sec), Nanosec: uint32(t.Nsec)}
}
