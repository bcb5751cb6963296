package errors

import (
	"errors"
	"io"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", NewNotFound("procedure", "plug-in-blur"), "procedure not found: plug-in-blur"},
		{"not found without id", NewNotFound("image", ""), "image not found"},
		{"validation", NewValidation("menu path", "missing prefix"), "invalid menu path: missing prefix"},
		{"validation without field", NewValidation("", "bad"), "invalid: bad"},
		{"io", NewIO("open", "/tmp/pluginrc", io.EOF), "open /tmp/pluginrc: EOF"},
		{"io without path", NewIO("read pipe", "", io.EOF), "read pipe: EOF"},
		{"parse", NewParse("pluginrc", "/tmp/pluginrc", "unexpected token"), "parse pluginrc /tmp/pluginrc: unexpected token"},
		{"parse without path", NewParse("interpreter db", "", "bad line"), "parse interpreter db: bad line"},
		{"unsupported", NewUnsupported("shared memory", "not linux"), "unsupported shared memory: not linux"},
		{"unsupported without reason", NewUnsupported("parasite", ""), "unsupported parasite"},
		{"protocol", NewProtocol("/plug-ins/blur", "unexpected tile ack"), `plug-in "/plug-ins/blur": protocol: unexpected tile ack`},
		{"host protocol", NewProtocol("", "short read"), "protocol: short read"},
		{"plug-in", NewPlugIn("/plug-ins/blur", "cannot start", io.ErrClosedPipe), `plug-in "/plug-ins/blur": cannot start: io: read/write on closed pipe`},
		{"plug-in without cause", NewPlugIn("/plug-ins/blur", "bad install", nil), `plug-in "/plug-ins/blur": bad install`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	cause := errors.New("lexer failed")
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", NewNotFound("drawable", "7"), ErrNotFound},
		{"validation", NewValidation("x", "y"), ErrInvalidInput},
		{"io cause", NewIO("write", "f", io.ErrShortWrite), io.ErrShortWrite},
		{"parse", NewParse("pluginrc", "", "m"), ErrInvalidInput},
		{"parse kind with cause", &ParseError{Format: "pluginrc", Err: cause}, ErrInvalidInput},
		{"parse cause", &ParseError{Format: "pluginrc", Err: cause}, cause},
		{"unsupported", NewUnsupported("x", ""), ErrUnsupported},
		{"protocol", NewProtocol("p", "m"), ErrProtocol},
		{"plug-in cause", NewPlugIn("p", "m", ErrPlugInClosed), ErrPlugInClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}

	if errors.Is(NewPlugIn("p", "m", nil), ErrPlugInClosed) {
		t.Error("a plug-in error without cause matched ErrPlugInClosed")
	}
}

func TestAsThroughWrapping(t *testing.T) {
	err := errors.Join(io.EOF, NewProtocol("/plug-ins/a", "bad message type 99"))
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Fatal("errors.As did not find the protocol error")
	}
	if pe.Prog != "/plug-ins/a" {
		t.Errorf("Prog = %q", pe.Prog)
	}
}
