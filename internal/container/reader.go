package container

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

type chunkRef struct {
	offset int64
	length int
}

// Reader gives channel-level access to a container. Open scans record
// heads once; message bodies are read per Messages call. It is not safe
// for concurrent use.
type Reader struct {
	src     io.ReadSeeker
	closer  io.Closer
	reg     *Registry
	codec   *codec
	header  Header
	conns   []Connection
	schemas map[uint32]Schema
	chunks  []chunkRef
}

// Open opens the container at path. The file stays open until Close.
func Open(path string, reg *Registry) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening container: %w", err)
	}
	r, err := newReader(f, f, reg)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// NewReader reads a container from rs. Close does not close rs.
func NewReader(rs io.ReadSeeker, reg *Registry) (*Reader, error) {
	return newReader(rs, nil, reg)
}

func newReader(rs io.ReadSeeker, closer io.Closer, reg *Registry) (*Reader, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking container: %w", err)
	}
	br := bufio.NewReader(rs)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	c, err := newCodec(h.Compression)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:     rs,
		closer:  closer,
		reg:     reg,
		codec:   c,
		header:  h,
		schemas: make(map[uint32]Schema),
	}
	if err := r.scanHeads(br); err != nil {
		c.close()
		return nil, err
	}
	return r, nil
}

// scanHeads walks the record stream, decoding connections and noting
// where each chunk lives.
func (r *Reader) scanHeads(br *bufio.Reader) error {
	offset := int64(headerSize)
	for {
		op, n, err := readRecordHead(br)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		offset += 1 + int64(uvarintLen(uint64(n)))

		switch op {
		case OpConnection:
			body := make([]byte, n)
			if _, err := io.ReadFull(br, body); err != nil {
				return fmt.Errorf("reading connection: %w", unexpected(err))
			}
			if err := r.addConnection(body); err != nil {
				return err
			}
		case OpChunk:
			if _, err := br.Discard(n); err != nil {
				return fmt.Errorf("skipping chunk: %w", unexpected(err))
			}
			r.chunks = append(r.chunks, chunkRef{offset: offset, length: n})
		default:
			return fmt.Errorf("unexpected %s record at offset %d", op, offset)
		}
		offset += int64(n)
	}
}

func (r *Reader) addConnection(body []byte) error {
	var c Connection
	if err := msgpack.Unmarshal(body, &c); err != nil {
		return fmt.Errorf("decoding connection: %w", err)
	}
	schema, ok := r.reg.Lookup(c.Schema)
	if !ok {
		return fmt.Errorf("connection %d (%s): unknown schema %s", c.ID, c.Channel, c.Schema)
	}
	if _, dup := r.schemas[c.ID]; dup {
		return fmt.Errorf("duplicate connection id %d", c.ID)
	}
	r.conns = append(r.conns, c)
	r.schemas[c.ID] = schema
	return nil
}

// ID returns the container UUID.
func (r *Reader) ID() uuid.UUID {
	return uuid.UUID(r.header.ID)
}

// Compression returns the chunk compression of the container.
func (r *Reader) Compression() Compression {
	return r.header.Compression
}

// CreatedAt returns the time the writer created the container.
func (r *Reader) CreatedAt() time.Time {
	return time.Unix(0, r.header.CreatedNs)
}

// Channels returns channel names in declaration order, without repeats.
func (r *Reader) Channels() []string {
	seen := make(map[string]struct{}, len(r.conns))
	out := make([]string, 0, len(r.conns))
	for _, c := range r.conns {
		if _, ok := seen[c.Channel]; ok {
			continue
		}
		seen[c.Channel] = struct{}{}
		out = append(out, c.Channel)
	}
	return out
}

// Connections returns every connection posted on channel.
func (r *Reader) Connections(channel string) []Connection {
	var out []Connection
	for _, c := range r.conns {
		if c.Channel == channel {
			out = append(out, c)
		}
	}
	return out
}

// Messages returns all messages on channel in file order. Payloads are
// copies and remain valid after Close.
func (r *Reader) Messages(channel string) ([]models.ChannelEntry, error) {
	want := make(map[uint32]models.MessageType)
	for _, c := range r.Connections(channel) {
		want[c.ID] = r.schemas[c.ID].Type
	}
	if len(want) == 0 {
		return nil, nil
	}

	var entries []models.ChannelEntry
	err := r.scan(func(conn uint32, ts int64, payload []byte) error {
		t, ok := want[conn]
		if !ok {
			return nil
		}
		entries = append(entries, models.ChannelEntry{
			Channel:   channel,
			Type:      t,
			Timestamp: ts,
			Payload:   append([]byte(nil), payload...),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Summary counts messages and time bounds per channel.
func (r *Reader) Summary() (*models.ContainerSummary, error) {
	byConn := make(map[uint32]*models.ChannelSummary, len(r.conns))
	out := &models.ContainerSummary{
		ID:          r.ID().String(),
		Compression: r.header.Compression.String(),
		CreatedAt:   r.CreatedAt(),
		Channels:    make([]models.ChannelSummary, len(r.conns)),
	}
	for i, c := range r.conns {
		s := r.schemas[c.ID]
		out.Channels[i] = models.ChannelSummary{Channel: c.Channel, Type: s.Type, Schema: s.Name}
		byConn[c.ID] = &out.Channels[i]
	}

	err := r.scan(func(conn uint32, ts int64, _ []byte) error {
		cs := byConn[conn]
		if cs.Count == 0 || ts < cs.FirstStamp {
			cs.FirstStamp = ts
		}
		if cs.Count == 0 || ts > cs.LastStamp {
			cs.LastStamp = ts
		}
		cs.Count++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan visits every message of every chunk in file order.
func (r *Reader) scan(fn func(conn uint32, ts int64, payload []byte) error) error {
	for i, ref := range r.chunks {
		block, err := r.readChunk(ref)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		for len(block) > 0 {
			if Op(block[0]) != OpMessage {
				return fmt.Errorf("chunk %d: unexpected %s record", i, Op(block[0]))
			}
			n, k := binary.Uvarint(block[1:])
			if k <= 0 || uint64(len(block)-1-k) < n {
				return fmt.Errorf("chunk %d: %w", i, io.ErrUnexpectedEOF)
			}
			body := block[1+k : 1+k+int(n)]
			block = block[1+k+int(n):]

			conn, ts, payload, err := parseMessage(body)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if _, ok := r.schemas[conn]; !ok {
				return fmt.Errorf("chunk %d: message on undeclared connection %d", i, conn)
			}
			if err := fn(conn, ts, payload); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) readChunk(ref chunkRef) ([]byte, error) {
	if _, err := r.src.Seek(ref.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking: %w", err)
	}
	body := make([]byte, ref.length)
	if _, err := io.ReadFull(r.src, body); err != nil {
		return nil, fmt.Errorf("reading: %w", unexpected(err))
	}
	size, k := binary.Uvarint(body)
	if k <= 0 || size > maxRecord {
		return nil, fmt.Errorf("bad chunk size")
	}
	return r.codec.decompress(body[k:], int(size))
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	r.codec.close()
	if r.closer != nil {
		c := r.closer
		r.closer = nil
		return c.Close()
	}
	return nil
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
