package models

import "time"

// ReaderKind selects which dataset reader a session opens.
type ReaderKind string

const (
	ReaderKindImu   ReaderKind = "imu"
	ReaderKindImage ReaderKind = "image"
)

// ReaderSession represents an open dataset reader held by the service.
type ReaderSession struct {
	ID        string         `json:"id"`
	FileID    string         `json:"fileId"`
	Kind      ReaderKind     `json:"kind"`
	Channel   string         `json:"channel"`
	Window    *TimeWindow    `json:"window,omitempty"`
	Frequency float64        `json:"frequency,omitempty"`
	Count     int            `json:"count"`
	Reports   []FilterReport `json:"reports,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ChannelSummary describes one channel of a container.
type ChannelSummary struct {
	Channel    string      `json:"channel"`
	Type       MessageType `json:"type"`
	Schema     string      `json:"schema"`
	Count      int         `json:"count"`
	FirstStamp int64       `json:"firstStamp"`
	LastStamp  int64       `json:"lastStamp"`
}

// ContainerSummary is the table of contents of a container.
type ContainerSummary struct {
	ID          string           `json:"id"`
	Compression string           `json:"compression"`
	CreatedAt   time.Time        `json:"createdAt"`
	Channels    []ChannelSummary `json:"channels"`
}
