package container

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// WriterOptions configures a Writer.
type WriterOptions struct {
	Compression Compression
	// ChunkSize is the uncompressed chunk flush threshold; 0 means default.
	ChunkSize int
	// Registry resolves message types to schema names; nil means NewRegistry().
	Registry *Registry
}

// Writer appends messages to a container. It is not safe for concurrent use.
type Writer struct {
	out       *bufio.Writer
	closer    io.Closer
	reg       *Registry
	codec     *codec
	header    Header
	chunkSize int

	conns     []*Connection
	byChannel map[string]*Connection
	types     map[uint32]models.MessageType

	chunk    []byte
	messages int
	closed   bool
}

// Create creates (or replaces) a container file at path.
func Create(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	w, err := newWriter(f, f, opts)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// NewWriter writes a container to w. Close flushes but does not close w.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	return newWriter(w, nil, opts)
}

func newWriter(w io.Writer, closer io.Closer, opts WriterOptions) (*Writer, error) {
	if !opts.Compression.valid() {
		return nil, fmt.Errorf("unsupported compression %s", opts.Compression)
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	c, err := newCodec(opts.Compression)
	if err != nil {
		return nil, err
	}

	wr := &Writer{
		out:       bufio.NewWriter(w),
		closer:    closer,
		reg:       reg,
		codec:     c,
		chunkSize: size,
		byChannel: make(map[string]*Connection),
		types:     make(map[uint32]models.MessageType),
		chunk:     make([]byte, 0, size+size/8),
		header: Header{
			Magic:       Magic,
			Version:     Version,
			Compression: opts.Compression,
			ID:          uuid.New(),
			CreatedNs:   time.Now().UnixNano(),
		},
	}
	if err := writeHeader(wr.out, wr.header); err != nil {
		c.close()
		return nil, err
	}
	return wr, nil
}

// ID returns the container's UUID.
func (w *Writer) ID() uuid.UUID {
	return uuid.UUID(w.header.ID)
}

// Count returns the number of messages written so far.
func (w *Writer) Count() int {
	return w.messages
}

// AddConnection declares a channel carrying messages of type t. Declaring
// the same channel twice with the same type returns the existing
// connection; a different type is an error.
func (w *Writer) AddConnection(channel string, t models.MessageType) (*Connection, error) {
	if w.closed {
		return nil, fmt.Errorf("writer closed")
	}
	if channel == "" {
		return nil, fmt.Errorf("channel name required")
	}
	schema, ok := w.reg.SchemaFor(t)
	if !ok {
		return nil, fmt.Errorf("no schema registered for message type %s", t)
	}
	if c, ok := w.byChannel[channel]; ok {
		if c.Schema != schema.Name {
			return nil, fmt.Errorf("channel %s already declared as %s", channel, c.Schema)
		}
		return c, nil
	}

	c := &Connection{ID: uint32(len(w.conns)), Channel: channel, Schema: schema.Name}
	body, err := msgpack.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding connection: %w", err)
	}
	if _, err := w.out.Write(appendRecord(nil, OpConnection, body)); err != nil {
		return nil, fmt.Errorf("writing connection: %w", err)
	}

	w.conns = append(w.conns, c)
	w.byChannel[channel] = c
	w.types[c.ID] = t
	return c, nil
}

// Write encodes msg and appends it to the connection at timestamp ts (ns).
func (w *Writer) Write(c *Connection, ts int64, msg any) error {
	if c != nil {
		if s, ok := w.reg.Lookup(c.Schema); ok && s.New != nil {
			want := reflect.TypeOf(s.New())
			if got := reflect.TypeOf(msg); got != want && got != want.Elem() {
				return fmt.Errorf("channel %s holds %s, got %v", c.Channel, c.Schema, got)
			}
		}
	}
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	return w.WriteRaw(c, ts, payload)
}

// WriteRaw appends an already encoded payload.
func (w *Writer) WriteRaw(c *Connection, ts int64, payload []byte) error {
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if c == nil || int(c.ID) >= len(w.conns) || w.conns[c.ID] != c {
		return fmt.Errorf("connection not declared on this writer")
	}

	body := appendMessage(nil, c.ID, ts, payload)
	w.chunk = appendRecord(w.chunk, OpMessage, body)
	w.messages++

	if len(w.chunk) >= w.chunkSize {
		return w.flushChunk()
	}
	return nil
}

func (w *Writer) flushChunk() error {
	if len(w.chunk) == 0 {
		return nil
	}
	packed, err := w.codec.compress(w.chunk)
	if err != nil {
		return err
	}

	body := binary.AppendUvarint(make([]byte, 0, len(packed)+binary.MaxVarintLen64), uint64(len(w.chunk)))
	body = append(body, packed...)
	if _, err := w.out.Write(appendRecord(nil, OpChunk, body)); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	w.chunk = w.chunk[:0]
	return nil
}

// Close flushes the pending chunk and releases the underlying file.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.codec.close()

	err := w.flushChunk()
	if ferr := w.out.Flush(); err == nil && ferr != nil {
		err = fmt.Errorf("flushing container: %w", ferr)
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing container: %w", cerr)
		}
	}
	return err
}
