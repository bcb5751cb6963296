//go:build !linux

package ipc

import (
	"github.com/FocuswithJustin/picman/core/errors"
)

func attachShm(int32) ([]byte, error) {
	return nil, errors.NewUnsupported("shared memory", "System V segments are only used on Linux")
}

func detachShm([]byte) {}
