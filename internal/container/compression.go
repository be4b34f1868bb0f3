package container

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how chunks are compressed.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

func (c Compression) valid() bool {
	return c <= CompressionZstd
}

// ParseCompression maps a config string to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "zst":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q (supported: none, lz4, zstd)", s)
}

// codec compresses and restores chunk blocks for one Compression.
type codec struct {
	kind Compression
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCodec(kind Compression) (*codec, error) {
	c := &codec{kind: kind}
	if kind == CompressionZstd {
		var err error
		if c.enc, err = zstd.NewWriter(nil); err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		if c.dec, err = zstd.NewReader(nil); err != nil {
			c.enc.Close()
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
	}
	return c, nil
}

func (c *codec) compress(src []byte) ([]byte, error) {
	switch c.kind {
	case CompressionNone:
		return src, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(src); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return c.enc.EncodeAll(src, make([]byte, 0, len(src)/2)), nil
	}
	return nil, fmt.Errorf("unsupported compression %s", c.kind)
}

func (c *codec) decompress(src []byte, size int) ([]byte, error) {
	var out []byte
	switch c.kind {
	case CompressionNone:
		out = src
	case CompressionLZ4:
		out = make([]byte, size)
		if _, err := io.ReadFull(lz4.NewReader(bytes.NewReader(src)), out); err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
	case CompressionZstd:
		var err error
		out, err = c.dec.DecodeAll(src, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported compression %s", c.kind)
	}
	if len(out) != size {
		return nil, fmt.Errorf("chunk size mismatch: header %d, got %d", size, len(out))
	}
	return out, nil
}

func (c *codec) close() {
	if c.enc != nil {
		c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}
