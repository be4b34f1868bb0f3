package container

import (
	"fmt"
	"sort"

	"github.com/HarborC/kalibrlib/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// Schema names as stored in connection records.
const (
	SchemaImu             = "sensor_msgs/msg/Imu"
	SchemaImage           = "sensor_msgs/msg/Image"
	SchemaCompressedImage = "sensor_msgs/msg/CompressedImage"
)

// Schema binds a stored schema name to a message type tag.
type Schema struct {
	Name string
	Type models.MessageType
	// New returns a pointer to an empty message. Writer.Write rejects
	// messages of any other type.
	New func() any
}

// Registry holds the schemas a reader or writer understands. It is built
// explicitly and passed in; there is no process-wide instance.
type Registry struct {
	byName map[string]Schema
	byType map[models.MessageType]Schema
}

// NewRegistry returns a registry holding the three sensor schemas.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]Schema),
		byType: make(map[models.MessageType]Schema),
	}
	for _, s := range []Schema{
		{Name: SchemaImu, Type: models.MessageTypeImu, New: func() any { return new(models.ImuMsg) }},
		{Name: SchemaImage, Type: models.MessageTypeImage, New: func() any { return new(models.ImageMsg) }},
		{Name: SchemaCompressedImage, Type: models.MessageTypeCompressedImage, New: func() any { return new(models.CompressedImageMsg) }},
	} {
		// Built-ins never collide.
		_ = r.Register(s)
	}
	return r
}

// Register adds a schema. Names and types must both be unique.
func (r *Registry) Register(s Schema) error {
	if s.Name == "" || s.Type == "" {
		return fmt.Errorf("schema needs a name and a type")
	}
	if _, ok := r.byName[s.Name]; ok {
		return fmt.Errorf("schema already registered: %s", s.Name)
	}
	if _, ok := r.byType[s.Type]; ok {
		return fmt.Errorf("message type already registered: %s", s.Type)
	}
	r.byName[s.Name] = s
	r.byType[s.Type] = s
	return nil
}

// Lookup finds a schema by its stored name.
func (r *Registry) Lookup(name string) (Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}

// SchemaFor finds the schema for a message type.
func (r *Registry) SchemaFor(t models.MessageType) (Schema, bool) {
	s, ok := r.byType[t]
	return s, ok
}

// Names returns the registered schema names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Decode unmarshals a message payload into v.
func Decode(payload []byte, v any) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}

// Encode marshals a message into a payload.
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return b, nil
}
