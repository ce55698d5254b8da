package checkpoint

import (
	"errors"
	"io"
	"strings"
	"testing"
)

var (
	errTag   = errors.New("tag error")
	errCause = errors.New("cause error")
)

func TestFrom(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantNil bool
		wantIs  []error
	}{
		{name: "nil stays nil", err: nil, wantNil: true},
		{name: "io.EOF is not wrapped", err: io.EOF, wantIs: []error{io.EOF}},
		{name: "cause stays visible", err: errCause, wantIs: []error{errCause}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.err)
			if (got == nil) != tt.wantNil {
				t.Fatalf("From() = %v, wantNil %v", got, tt.wantNil)
			}
			for _, want := range tt.wantIs {
				if !errors.Is(got, want) {
					t.Errorf("From() = %v, want errors.Is(%v)", got, want)
				}
			}
		})
	}

	if From(io.EOF) != io.EOF {
		t.Errorf("From(io.EOF) must return io.EOF itself")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, errTag) != nil {
		t.Errorf("Wrap(nil, tag) must be nil")
	}

	err := Wrap(errCause, errTag)
	if !errors.Is(err, errTag) {
		t.Errorf("Wrap() = %v, want errors.Is(tag)", err)
	}
	if !errors.Is(err, errCause) {
		t.Errorf("Wrap() = %v, want errors.Is(cause)", err)
	}
	if !strings.Contains(err.Error(), "checkpoint_test.go") {
		t.Errorf("Wrap() = %q, want the caller location in the message", err.Error())
	}

	nested := Wrapf(err, nil, "reading %d", 7)
	if !errors.Is(nested, errTag) || !errors.Is(nested, errCause) {
		t.Errorf("Wrapf() = %v, lost wrapped errors", nested)
	}
	if !strings.Contains(nested.Error(), "reading 7") {
		t.Errorf("Wrapf() = %q, want detail message", nested.Error())
	}
}

func TestNew(t *testing.T) {
	err := New(errTag, "cluster %d", 3)
	if !errors.Is(err, errTag) {
		t.Errorf("New() = %v, want errors.Is(tag)", err)
	}
	if errors.Unwrap(err) != nil {
		t.Errorf("New() must not wrap anything, got %v", errors.Unwrap(err))
	}
	if !strings.HasPrefix(err.Error(), "tag error: cluster 3") {
		t.Errorf("New() = %q", err.Error())
	}
}

type kindError struct{ kind string }

func (k kindError) Error() string { return k.kind }

func TestAs(t *testing.T) {
	err := Wrap(errCause, kindError{kind: "timeout"})
	var k kindError
	if !errors.As(err, &k) || k.kind != "timeout" {
		t.Errorf("errors.As() did not find tag, got %v", k)
	}
}
