// Package wire frames typed messages onto the byte streams that connect the
// host to a plug-in process.
//
// A frame is a 4-byte message type followed by a type-specific payload. The
// payload codec for each type is registered once on a Registry; both ends of
// a connection must register the same set.
package wire

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownType is returned when a frame carries an unregistered type tag.
	ErrUnknownType = errors.New("wire: unknown message type")
	// ErrDuplicateType is returned when a type tag is registered twice.
	ErrDuplicateType = errors.New("wire: message type already registered")
	// ErrTooLong is returned when a length prefix exceeds MaxLength.
	ErrTooLong = errors.New("wire: length prefix too long")
)

// Message is one decoded frame.
type Message struct {
	Type uint32
	Data any
}

// Codec reads and writes the payload of one message type. Destroy is
// optional and releases resources a decoded payload holds on to.
type Codec struct {
	Read    func(c *Channel) (any, error)
	Write   func(c *Channel, data any) error
	Destroy func(data any)
}

// Registry maps message type tags to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[uint32]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[uint32]Codec)}
}

// Register associates a type tag with its codec.
func (r *Registry) Register(msgType uint32, codec Codec) error {
	if codec.Read == nil || codec.Write == nil {
		return fmt.Errorf("wire: codec for type %d needs read and write functions", msgType)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codecs[msgType]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateType, msgType)
	}
	r.codecs[msgType] = codec
	return nil
}

func (r *Registry) lookup(msgType uint32) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codec, ok := r.codecs[msgType]
	return codec, ok
}

// ReadMsg blocks until a whole frame has arrived and decodes it. Any error
// means the connection is no longer usable.
func (r *Registry) ReadMsg(c *Channel) (Message, error) {
	msgType, err := c.ReadUint32()
	if err != nil {
		return Message{}, err
	}
	codec, ok := r.lookup(msgType)
	if !ok {
		return Message{}, c.fail(fmt.Errorf("%w: %d", ErrUnknownType, msgType))
	}
	data, err := codec.Read(c)
	if err != nil {
		return Message{}, c.fail(err)
	}
	return Message{Type: msgType, Data: data}, nil
}

// WriteMsg encodes a frame into the channel's write buffer. Nothing is
// guaranteed to reach the peer until Flush.
func (r *Registry) WriteMsg(c *Channel, m Message) error {
	codec, ok := r.lookup(m.Type)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownType, m.Type)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.WriteUint32(m.Type); err != nil {
		return err
	}
	return codec.Write(c, m.Data)
}

// Destroy runs the type's Destroy hook, if any.
func (r *Registry) Destroy(m Message) {
	if codec, ok := r.lookup(m.Type); ok && codec.Destroy != nil {
		codec.Destroy(m.Data)
	}
}
