package dataset

import (
	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/models"
)

type imuHandler func(models.ChannelEntry) (models.ImuRecord, error)

// ImuDecoder turns IMU channel entries into ImuRecords.
type ImuDecoder struct {
	handlers map[models.MessageType]imuHandler
}

// NewImuDecoder returns a decoder that accepts Imu messages only.
func NewImuDecoder() *ImuDecoder {
	return &ImuDecoder{
		handlers: map[models.MessageType]imuHandler{
			models.MessageTypeImu: decodeImuMsg,
		},
	}
}

// Decode decodes one entry.
func (d *ImuDecoder) Decode(e models.ChannelEntry) (models.ImuRecord, error) {
	h, ok := d.handlers[e.Type]
	if !ok {
		return models.ImuRecord{}, &UnsupportedMessageTypeError{
			Channel:   e.Channel,
			Type:      e.Type,
			Supported: []models.MessageType{models.MessageTypeImu},
		}
	}
	return h(e)
}

func decodeImuMsg(e models.ChannelEntry) (models.ImuRecord, error) {
	var msg models.ImuMsg
	if err := container.Decode(e.Payload, &msg); err != nil {
		return models.ImuRecord{}, &MalformedMessageError{Channel: e.Channel, Type: e.Type, Err: err}
	}
	return models.ImuRecord{
		Stamp:              models.TimeFromNanos(e.Timestamp),
		AngularVelocity:    msg.AngularVelocity,
		LinearAcceleration: msg.LinearAcceleration,
	}, nil
}
