// Package errors holds the error types shared by the plug-in host, the
// procedure database, the wire protocol and the on-disk caches.
//
// Every typed error unwraps to one of the sentinel values below, so callers
// can branch with errors.Is without knowing the concrete type.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported")
	// ErrProtocol means a peer sent something the protocol does not allow.
	ErrProtocol = errors.New("protocol violation")
	// ErrPlugInClosed means the plug-in process went away before answering.
	ErrPlugInClosed = errors.New("plug-in closed")
)

// NotFoundError names a missing procedure, plug-in, image or drawable.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports a value a caller should not have passed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// IOError wraps a failed file or pipe operation.
type IOError struct {
	Operation string
	Path      string
	Err       error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError reports malformed input in one of the text formats: pluginrc,
// interpreter and environment tables.
type ParseError struct {
	Format  string
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse %s: %s", e.Format, e.Message)
	}
	return fmt.Sprintf("parse %s %s: %s", e.Format, e.Path, e.Message)
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidInput}
	}
	return []error{ErrInvalidInput, e.Err}
}

// UnsupportedError reports a feature this platform or build lacks.
type UnsupportedError struct {
	Feature string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	if e.Reason == "" {
		return "unsupported " + e.Feature
	}
	return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// ProtocolError is a wire-level violation by the plug-in at Prog, or by
// the host when Prog is empty.
type ProtocolError struct {
	Prog    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Prog == "" {
		return "protocol: " + e.Message
	}
	return fmt.Sprintf("plug-in %q: protocol: %s", e.Prog, e.Message)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// PlugInError is a lifecycle failure of one plug-in: it could not be
// started, installed a malformed procedure or asked for an invalid menu.
type PlugInError struct {
	Prog    string
	Message string
	Err     error
}

func (e *PlugInError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("plug-in %q: %s", e.Prog, e.Message)
	}
	return fmt.Sprintf("plug-in %q: %s: %v", e.Prog, e.Message, e.Err)
}

func (e *PlugInError) Unwrap() error { return e.Err }

func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Reason: reason}
}

func NewProtocol(prog, message string) *ProtocolError {
	return &ProtocolError{Prog: prog, Message: message}
}

func NewPlugIn(prog, message string, err error) *PlugInError {
	return &PlugInError{Prog: prog, Message: message, Err: err}
}
