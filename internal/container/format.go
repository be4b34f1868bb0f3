/*
Package container implements the sensor-log container: a sequential binary
log of channel-tagged, timestamped messages.

Layout:

	[Header]      32 bytes, big endian
	[Records...]  [op byte][uvarint body length][body]

Record bodies:

	OpConnection  msgpack Connection {id, channel, schema}
	OpChunk       [uvarint raw size][compressed block of OpMessage records]
	OpMessage     [uvarint connection id][int64 timestamp ns][payload]

Connections are always written before the first chunk that references
them. Message payloads are msgpack-encoded schemas from the Registry.
*/
package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// Magic number "KBAG"
	Magic uint32 = 0x4B424147
	// Current format version
	Version uint8 = 1

	// DefaultChunkSize is the uncompressed size at which a chunk is flushed.
	DefaultChunkSize = 768 * 1024

	headerSize = 32
	maxRecord  = 1 << 30
)

// Op identifies a record.
type Op uint8

const (
	OpMessage    Op = 0x02
	OpChunk      Op = 0x05
	OpConnection Op = 0x07
)

func (o Op) String() string {
	switch o {
	case OpMessage:
		return "message"
	case OpChunk:
		return "chunk"
	case OpConnection:
		return "connection"
	default:
		return fmt.Sprintf("op(0x%02x)", uint8(o))
	}
}

// Header is the fixed file header.
type Header struct {
	Magic       uint32
	Version     uint8
	Compression Compression
	Reserved    [2]uint8
	ID          [16]byte
	CreatedNs   int64
}

// Connection binds a channel name to a message schema.
type Connection struct {
	ID      uint32 `msgpack:"id"`
	Channel string `msgpack:"channel"`
	Schema  string `msgpack:"schema"`
}

var (
	// ErrBadMagic is returned when a file is not a container.
	ErrBadMagic = errors.New("not a sensor-log container")
	// ErrUnsupportedVersion is returned for containers from a newer writer.
	ErrUnsupportedVersion = errors.New("unsupported container version")
)

func readHeader(r io.Reader) (Header, error) {
	var h Header
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return h, fmt.Errorf("reading header: %w", err)
	}
	if h.Magic != Magic {
		return h, fmt.Errorf("%w: magic %x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if !h.Compression.valid() {
		return h, fmt.Errorf("reading header: unknown compression %d", h.Compression)
	}
	return h, nil
}

func writeHeader(w io.Writer, h Header) error {
	if err := binary.Write(w, binary.BigEndian, &h); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	return nil
}

// appendRecord frames body as a record.
func appendRecord(dst []byte, op Op, body []byte) []byte {
	dst = append(dst, byte(op))
	dst = binary.AppendUvarint(dst, uint64(len(body)))
	return append(dst, body...)
}

// readRecordHead reads op and body length. A clean end of stream returns
// io.EOF; a record cut short returns io.ErrUnexpectedEOF.
func readRecordHead(r *bufio.Reader) (Op, int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, 0, fmt.Errorf("reading %s length: %w", Op(b), err)
	}
	if n > maxRecord {
		return 0, 0, fmt.Errorf("%s record of %d bytes exceeds limit", Op(b), n)
	}
	return Op(b), int(n), nil
}

// appendMessage encodes an OpMessage body.
func appendMessage(dst []byte, conn uint32, ts int64, payload []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(conn))
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts))
	return append(dst, payload...)
}

// parseMessage splits an OpMessage body. The payload aliases body.
func parseMessage(body []byte) (conn uint32, ts int64, payload []byte, err error) {
	id, n := binary.Uvarint(body)
	if n <= 0 {
		return 0, 0, nil, fmt.Errorf("message: bad connection id")
	}
	body = body[n:]
	if len(body) < 8 {
		return 0, 0, nil, fmt.Errorf("message: %w", io.ErrUnexpectedEOF)
	}
	ts = int64(binary.BigEndian.Uint64(body))
	return uint32(id), ts, body[8:], nil
}
