package dataset

import (
	"encoding/binary"
	"fmt"
	"image"
	"sort"

	"github.com/HarborC/kalibrlib/internal/container"
	"github.com/HarborC/kalibrlib/internal/imaging"
	"github.com/HarborC/kalibrlib/internal/models"
)

type imageHandler func(models.ChannelEntry) (*image.Gray, error)

// ImageDecoder turns camera channel entries into ImageRecords.
type ImageDecoder struct {
	handlers map[models.MessageType]imageHandler
}

// NewImageDecoder returns a decoder for raw and compressed images.
func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{
		handlers: map[models.MessageType]imageHandler{
			models.MessageTypeImage:           decodeRawImage,
			models.MessageTypeCompressedImage: decodeCompressedImage,
		},
	}
}

// Decode decodes one entry.
func (d *ImageDecoder) Decode(e models.ChannelEntry) (models.ImageRecord, error) {
	h, ok := d.handlers[e.Type]
	if !ok {
		return models.ImageRecord{}, &UnsupportedMessageTypeError{
			Channel:   e.Channel,
			Type:      e.Type,
			Supported: []models.MessageType{models.MessageTypeCompressedImage, models.MessageTypeImage},
		}
	}
	pix, err := h(e)
	if err != nil {
		return models.ImageRecord{}, err
	}
	return models.ImageRecord{Stamp: models.TimeFromNanos(e.Timestamp), Pixels: pix}, nil
}

func decodeCompressedImage(e models.ChannelEntry) (*image.Gray, error) {
	var msg models.CompressedImageMsg
	if err := container.Decode(e.Payload, &msg); err != nil {
		return nil, &MalformedImageError{Reason: "payload", Err: err}
	}
	g, _, err := imaging.Decode(msg.Data)
	if err != nil {
		return nil, &MalformedImageError{Reason: fmt.Sprintf("%q data", msg.Format), Err: err}
	}
	return g, nil
}

func decodeRawImage(e models.ChannelEntry) (*image.Gray, error) {
	var msg models.ImageMsg
	if err := container.Decode(e.Payload, &msg); err != nil {
		return nil, &MalformedImageError{Reason: "payload", Err: err}
	}
	return ConvertRaw(&msg)
}

// rawFormat describes one raw pixel encoding.
type rawFormat struct {
	bytesPerPixel int
	convert       func(dst *image.Gray, src rawPixels)
}

// rawPixels is a validated view of a raw image buffer.
type rawPixels struct {
	data      []byte
	width     int
	height    int
	step      int
	bigEndian bool
}

func (p rawPixels) row(y, bpp int) []byte {
	return p.data[y*p.step : y*p.step+p.width*bpp]
}

var rawFormats = map[string]rawFormat{
	"mono8":       {1, convertMono8},
	"8UC1":        {1, convertMono8},
	"mono16":      {2, convertMono16},
	"16UC1":       {2, convertMono16},
	"bgr8":        {3, convertColor(2, 1, 0, 3)},
	"8UC3":        {3, convertColor(2, 1, 0, 3)},
	"rgb8":        {3, convertColor(0, 1, 2, 3)},
	"bgra8":       {4, convertColor(2, 1, 0, 4)},
	"8UC4":        {4, convertColor(2, 1, 0, 4)},
	"bayer_rggb8": {1, convertBayer(patternRGGB)},
	"bayer_bggr8": {1, convertBayer(patternBGGR)},
	"bayer_gbrg8": {1, convertBayer(patternGBRG)},
	"bayer_grbg8": {1, convertBayer(patternGRBG)},
}

// SupportedEncodings lists the raw encodings ConvertRaw accepts.
func SupportedEncodings() []string {
	out := make([]string, 0, len(rawFormats))
	for name := range rawFormats {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ConvertRaw canonicalizes a raw image message to 8-bit gray.
func ConvertRaw(msg *models.ImageMsg) (*image.Gray, error) {
	f, ok := rawFormats[msg.Encoding]
	if !ok {
		return nil, &UnsupportedEncodingError{Encoding: msg.Encoding, Supported: SupportedEncodings()}
	}

	w, h := int(msg.Width), int(msg.Height)
	rowBytes := w * f.bytesPerPixel
	step := int(msg.Step)
	if step == 0 {
		step = rowBytes
	}
	if step < rowBytes {
		return nil, &MalformedImageError{Reason: fmt.Sprintf("step %d shorter than row of %d bytes", step, rowBytes)}
	}
	if h > 0 {
		need := (h-1)*step + rowBytes
		if len(msg.Data) < need {
			return nil, &MalformedImageError{Reason: fmt.Sprintf("%dx%d %s needs %d bytes, got %d",
				w, h, msg.Encoding, need, len(msg.Data))}
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst, nil
	}
	f.convert(dst, rawPixels{data: msg.Data, width: w, height: h, step: step, bigEndian: msg.IsBigEndian != 0})
	return dst, nil
}

func convertMono8(dst *image.Gray, src rawPixels) {
	for y := 0; y < src.height; y++ {
		copy(dst.Pix[y*dst.Stride:], src.row(y, 1))
	}
}

func convertMono16(dst *image.Gray, src rawPixels) {
	order := binary.ByteOrder(binary.LittleEndian)
	if src.bigEndian {
		order = binary.BigEndian
	}
	for y := 0; y < src.height; y++ {
		row := src.row(y, 2)
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < src.width; x++ {
			out[x] = uint8(order.Uint16(row[2*x:]) / 256)
		}
	}
}

// convertColor builds a converter for interleaved 8-bit colour with the
// given channel offsets.
func convertColor(r, g, b, channels int) func(*image.Gray, rawPixels) {
	return func(dst *image.Gray, src rawPixels) {
		for y := 0; y < src.height; y++ {
			row := src.row(y, channels)
			out := dst.Pix[y*dst.Stride:]
			for x := 0; x < src.width; x++ {
				px := row[x*channels:]
				out[x] = imaging.Luma(px[r], px[g], px[b])
			}
		}
	}
}
