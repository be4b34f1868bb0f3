// Package models contains domain types for sensor-log containers and the
// records decoded from them.
package models

// MessageType is the closed set of message schemas a container may carry.
type MessageType string

const (
	MessageTypeImu             MessageType = "Imu"
	MessageTypeImage           MessageType = "Image"
	MessageTypeCompressedImage MessageType = "CompressedImage"
)

// ChannelEntry is one raw message posted to a channel.
// Entries are created once when a channel is indexed and never mutated.
type ChannelEntry struct {
	Channel   string      `json:"channel"`
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"` // nanoseconds
	Payload   []byte      `json:"-"`
}
