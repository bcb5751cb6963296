package ipc

import (
	"fmt"
	"strconv"
)

// Mode is the reason the host started the plug-in.
type Mode string

const (
	ModeQuery Mode = "-query"
	ModeInit  Mode = "-init"
	ModeRun   Mode = "-run"
)

// Args is the command line the host passes to every plug-in:
//
//	prog -picman READ_FD WRITE_FD MODE STACK_TRACE_MODE
type Args struct {
	ReadFD     int
	WriteFD    int
	Mode       Mode
	StackTrace string
}

// ParseArgs parses argv as passed to main, program name included.
func ParseArgs(argv []string) (*Args, error) {
	if len(argv) < 6 || argv[1] != "-picman" {
		return nil, fmt.Errorf("this program must be run by the host application")
	}
	rfd, err := strconv.Atoi(argv[2])
	if err != nil || rfd < 0 {
		return nil, fmt.Errorf("invalid read descriptor %q", argv[2])
	}
	wfd, err := strconv.Atoi(argv[3])
	if err != nil || wfd < 0 {
		return nil, fmt.Errorf("invalid write descriptor %q", argv[3])
	}

	mode := Mode(argv[4])
	switch mode {
	case ModeQuery, ModeInit, ModeRun:
	default:
		return nil, fmt.Errorf("unknown call mode %q", argv[4])
	}

	switch argv[5] {
	case "never", "query", "always":
	default:
		return nil, fmt.Errorf("unknown stack trace mode %q", argv[5])
	}

	return &Args{ReadFD: rfd, WriteFD: wfd, Mode: mode, StackTrace: argv[5]}, nil
}
