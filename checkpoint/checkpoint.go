// Package checkpoint decorates errors with the source location they passed through
// on their way up the stack, which results in something similar to a stacktrace.
//
// A checkpoint may carry a tag, usually a package level sentinel error. Both the
// tag and the wrapped error stay visible to errors.Is and errors.As, so a caller
// can ask for the high level reason (e.g. "directory not found") as well as for
// the low level cause (e.g. a device timeout) of the same error value.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps err by a checkpoint holding the location of the caller.
// It returns nil if err is nil.
func From(err error) error {
	if err == nil {
		return nil
	}
	// io.EOF has to be returned unwrapped, see https://github.com/golang/go/issues/39155
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}
	return newCheckpoint(err, nil, "")
}

// Wrap adds a checkpoint tagged with tag on top of prev.
// Returns nil if prev is nil, so it can be used directly on any returned error:
//  func mount() error {
//  	_, err := readBootSector()
//  	return checkpoint.Wrap(err, ErrInvalidVolume)
//  }
// errors.Is(err, ErrInvalidVolume) then holds, and so does errors.Is for whatever
// readBootSector returned.
func Wrap(prev, tag error) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}
	return newCheckpoint(prev, tag, "")
}

// Wrapf is like Wrap but additionally records a formatted detail message.
func Wrapf(prev, tag error, format string, args ...interface{}) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}
	return newCheckpoint(prev, tag, fmt.Sprintf(format, args...))
}

// New creates a checkpoint for tag alone, with a formatted detail message.
// Use it where a sentinel error is raised rather than passed on.
func New(tag error, format string, args ...interface{}) error {
	return newCheckpoint(nil, tag, fmt.Sprintf(format, args...))
}

func newCheckpoint(prev, tag error, detail string) *checkpoint {
	// Skip newCheckpoint and the exported constructor.
	_, file, line, ok := runtime.Caller(2)
	return &checkpoint{
		tag:    tag,
		prev:   prev,
		detail: detail,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	tag    error
	prev   error
	detail string

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) location() string {
	if !e.callerOk {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", e.file, e.line)
}

func (e *checkpoint) Error() string {
	var parts []string
	if e.tag != nil {
		parts = append(parts, e.tag.Error())
	}
	if e.detail != "" {
		parts = append(parts, e.detail)
	}
	head := strings.Join(parts, ": ")
	if head == "" {
		head = "checkpoint"
	}
	head += " (" + e.location() + ")"

	if e.prev == nil {
		return head
	}
	return head + "\n\t" + strings.ReplaceAll(e.prev.Error(), "\n", "\n\t")
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return e.tag != nil && errors.Is(e.tag, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.tag != nil && errors.As(e.tag, target)
}
