//go:build linux

package plugins

import (
	"golang.org/x/sys/unix"
)

// sharedMemory is a System V segment plug-ins attach to for tile
// transfer, sized for one tile of the largest pixel format.
type sharedMemory struct {
	id   int
	data []byte
}

// newSharedMemory creates and attaches a segment. It is marked for removal
// at once, so it disappears when the last process detaches.
func newSharedMemory(size int) (*sharedMemory, error) {
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return nil, err
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return nil, err
	}
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
		_ = unix.SysvShmDetach(data)
		return nil, err
	}
	return &sharedMemory{id: id, data: data}, nil
}

// ID is what plug-ins attach to.
func (s *sharedMemory) ID() int32 { return int32(s.id) }

func (s *sharedMemory) Bytes() []byte { return s.data }

func (s *sharedMemory) Close() error {
	if s.data == nil {
		return nil
	}
	err := unix.SysvShmDetach(s.data)
	s.data = nil
	return err
}
