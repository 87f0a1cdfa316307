package loader

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every error returned by this package matches exactly one
// of them under errors.Is.
var (
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrDecode              = errors.New("decode error")
	ErrFragmentNotFound    = errors.New("fragment not found")
	ErrCyclicReference     = errors.New("cyclic reference")
)

// ResourceError reports a resource that could not be retrieved.
type ResourceError struct {
	URI    string
	Status int    // upstream HTTP status, 0 when not applicable
	Detail string // upstream response body or transport detail
	Err    error
}

func (e *ResourceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]: resource unavailable", e.URI)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ResourceError) Unwrap() error { return e.Err }

func (e *ResourceError) Is(target error) bool { return target == ErrResourceUnavailable }

// DecodeError reports malformed document content.
type DecodeError struct {
	URI    string
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("%s decode: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("[%s]: %s decode: %v", e.URI, e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// FragmentError reports a fragment path segment that does not exist.
type FragmentError struct {
	URI      string
	Fragment string
	Segment  string
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("[%s]: unknown fragment: %s (missing %q)", e.URI, e.Fragment, e.Segment)
}

func (e *FragmentError) Is(target error) bool { return target == ErrFragmentNotFound }

// CycleError reports a reference chain that re-enters a resource still
// being resolved. Chain lists the URIs from the outermost resource to the
// repeated one.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "cyclic reference: " + strings.Join(e.Chain, " -> ")
}

func (e *CycleError) Is(target error) bool { return target == ErrCyclicReference }
