package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// MaxLength bounds any length prefix read off the wire, so a corrupt stream
// cannot make the reader allocate without limit.
const MaxLength = 1 << 26

// DefaultBufferSize is the size of the write buffer a Channel batches
// messages into before it has to flush.
const DefaultBufferSize = 512

// Channel is one end of a plug-in connection: a reader for incoming bytes and
// a buffered writer for outgoing ones. Integers travel big-endian.
//
// Reads must come from a single goroutine. Whole-message writes through a
// Registry and Flush are serialized, so several goroutines may send.
type Channel struct {
	r *bufio.Reader
	w io.Writer

	wmu  sync.Mutex
	buf  []byte
	size int

	errMu sync.Mutex
	err   error
}

// NewChannel wraps a reader and a writer. A bufSize of zero or less selects
// DefaultBufferSize.
func NewChannel(r io.Reader, w io.Writer, bufSize int) *Channel {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	c := &Channel{
		w:    w,
		buf:  make([]byte, 0, bufSize),
		size: bufSize,
	}
	if r != nil {
		c.r = bufio.NewReader(r)
	}
	return c
}

// Err returns the first I/O failure seen since the last ClearError.
func (c *Channel) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// ClearError resets the error flag.
func (c *Channel) ClearError() {
	c.errMu.Lock()
	c.err = nil
	c.errMu.Unlock()
}

func (c *Channel) fail(err error) error {
	if err == nil {
		return nil
	}
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
	return err
}

// Flush writes out everything buffered so far. It must be called before
// blocking on a reply.
func (c *Channel) Flush() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.flushLocked()
}

func (c *Channel) flushLocked() error {
	if len(c.buf) == 0 {
		return nil
	}
	_, err := c.w.Write(c.buf)
	c.buf = c.buf[:0]
	return c.fail(err)
}

// Buffered returns the number of bytes waiting for a flush.
func (c *Channel) Buffered() int {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return len(c.buf)
}

// write copies p into the buffer, flushing every time the buffer fills.
func (c *Channel) write(p []byte) error {
	if c.w == nil {
		return c.fail(io.ErrClosedPipe)
	}
	for len(p) > 0 {
		room := c.size - len(c.buf)
		if room == 0 {
			if err := c.flushLocked(); err != nil {
				return err
			}
			continue
		}
		n := min(room, len(p))
		c.buf = append(c.buf, p[:n]...)
		p = p[n:]
	}
	return nil
}

func (c *Channel) read(p []byte) error {
	if c.r == nil {
		return c.fail(io.ErrClosedPipe)
	}
	_, err := io.ReadFull(c.r, p)
	return c.fail(err)
}

// ReadUint32 reads one unsigned 32-bit integer.
func (c *Channel) ReadUint32() (uint32, error) {
	var b [4]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteUint32 writes one unsigned 32-bit integer.
func (c *Channel) WriteUint32(v uint32) error {
	return c.write(binary.BigEndian.AppendUint32(nil, v))
}

// ReadInt32 reads one signed 32-bit integer.
func (c *Channel) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

// WriteInt32 writes one signed 32-bit integer.
func (c *Channel) WriteInt32(v int32) error {
	return c.WriteUint32(uint32(v))
}

// ReadInt16 reads one signed 16-bit integer.
func (c *Channel) ReadInt16() (int16, error) {
	var b [2]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b[:])), nil
}

// WriteInt16 writes one signed 16-bit integer.
func (c *Channel) WriteInt16(v int16) error {
	return c.write(binary.BigEndian.AppendUint16(nil, uint16(v)))
}

// ReadInt8 reads one byte.
func (c *Channel) ReadInt8() (uint8, error) {
	var b [1]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// WriteInt8 writes one byte.
func (c *Channel) WriteInt8(v uint8) error {
	return c.write([]byte{v})
}

// ReadDouble reads an IEEE-754 double.
func (c *Channel) ReadDouble() (float64, error) {
	var b [8]byte
	if err := c.read(b[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
}

// WriteDouble writes an IEEE-754 double.
func (c *Channel) WriteDouble(v float64) error {
	return c.write(binary.BigEndian.AppendUint64(nil, math.Float64bits(v)))
}

// ReadString reads a length-prefixed string. The length counts a trailing
// NUL byte; a zero length is the empty string.
func (c *Channel) ReadString() (string, error) {
	n, err := c.ReadUint32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b, err := c.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	if b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

// WriteString writes a length-prefixed, NUL terminated string.
func (c *Channel) WriteString(s string) error {
	if err := c.WriteUint32(uint32(len(s) + 1)); err != nil {
		return err
	}
	b := make([]byte, len(s)+1)
	copy(b, s)
	return c.write(b)
}

// ReadColor reads an RGBA tuple of four doubles.
func (c *Channel) ReadColor() ([4]float64, error) {
	var rgba [4]float64
	for i := range rgba {
		v, err := c.ReadDouble()
		if err != nil {
			return rgba, err
		}
		rgba[i] = v
	}
	return rgba, nil
}

// WriteColor writes an RGBA tuple of four doubles.
func (c *Channel) WriteColor(rgba [4]float64) error {
	for _, v := range rgba {
		if err := c.WriteDouble(v); err != nil {
			return err
		}
	}
	return nil
}

// ReadBytes reads exactly n raw bytes.
func (c *Channel) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > MaxLength {
		return nil, c.fail(ErrTooLong)
	}
	b := make([]byte, n)
	if err := c.read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteBytes writes raw bytes.
func (c *Channel) WriteBytes(b []byte) error {
	return c.write(b)
}
