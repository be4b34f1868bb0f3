package dataset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/HarborC/kalibrlib/internal/models"
)

// ErrIndexOutOfRange is returned by At for positions outside the reader.
var ErrIndexOutOfRange = errors.New("index out of range")

// ChannelNotFoundError is returned when a container has no connection on
// the requested channel.
type ChannelNotFoundError struct {
	Channel string
	Path    string
}

func (e *ChannelNotFoundError) Error() string {
	if e.Channel == "" {
		return "channel name required: pass the channel referring to the stream in the container"
	}
	if e.Path != "" {
		return fmt.Sprintf("could not find channel %s in %s", e.Channel, e.Path)
	}
	return fmt.Sprintf("could not find channel %s", e.Channel)
}

// InvalidWindowError is returned for a time window whose start is not
// before its end.
type InvalidWindowError struct {
	Window models.TimeWindow
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid time window [%g, %g]: start must be before end", e.Window.Start, e.Window.End)
}

// InvalidFrequencyError is returned for a non-positive or non-finite
// target frequency.
type InvalidFrequencyError struct {
	Frequency float64
}

func (e *InvalidFrequencyError) Error() string {
	return fmt.Sprintf("invalid frequency %g Hz: must be positive", e.Frequency)
}

// UnsupportedMessageTypeError is returned when a decoder meets a message
// type it has no handler for.
type UnsupportedMessageTypeError struct {
	Channel   string
	Type      models.MessageType
	Supported []models.MessageType
}

func (e *UnsupportedMessageTypeError) Error() string {
	names := make([]string, len(e.Supported))
	for i, t := range e.Supported {
		names[i] = string(t)
	}
	return fmt.Sprintf("unsupported message type %q on channel %s; supported are: %s",
		e.Type, e.Channel, strings.Join(names, ", "))
}

// UnsupportedEncodingError is returned for a raw image pixel encoding
// outside the supported table.
type UnsupportedEncodingError struct {
	Encoding  string
	Supported []string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported image encoding %q; supported are: %s",
		e.Encoding, strings.Join(e.Supported, ", "))
}

// MalformedImageError is returned when an image payload cannot be turned
// into pixels: a raw image shorter than its header declares, or a
// compressed blob no registered codec accepts.
type MalformedImageError struct {
	Reason string
	Err    error
}

func (e *MalformedImageError) Error() string {
	if e.Err != nil {
		return "malformed image: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed image: " + e.Reason
}

func (e *MalformedImageError) Unwrap() error { return e.Err }

// MalformedMessageError is returned when a payload does not decode as the
// schema its connection declares.
type MalformedMessageError struct {
	Channel string
	Type    models.MessageType
	Err     error
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("malformed %s message on channel %s: %v", e.Type, e.Channel, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }
