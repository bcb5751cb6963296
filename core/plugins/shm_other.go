//go:build !linux

package plugins

import (
	"github.com/FocuswithJustin/picman/core/errors"
)

type sharedMemory struct{}

func newSharedMemory(int) (*sharedMemory, error) {
	return nil, errors.NewUnsupported("shared memory", "System V segments are only used on Linux")
}

func (s *sharedMemory) ID() int32     { return -1 }
func (s *sharedMemory) Bytes() []byte { return nil }
func (s *sharedMemory) Close() error  { return nil }
