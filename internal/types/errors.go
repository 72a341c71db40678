package types

import (
	"errors"
	"fmt"
)

// Kind is a failure category surfaced to callers of the engine.
type Kind struct {
	name   string
	parent *Kind
}

func (k *Kind) Error() string { return k.name }

// Is reports membership in a family, so every download subkind matches
// ErrDownloadFailed.
func (k *Kind) Is(target error) bool {
	t, ok := target.(*Kind)
	if !ok {
		return false
	}
	for c := k; c != nil; c = c.parent {
		if c == t {
			return true
		}
	}
	return false
}

var (
	ErrURLInvalid          = &Kind{name: "url invalid"}
	ErrVideoIDUnresolvable = &Kind{name: "video id unresolvable"}

	ErrDownloadFailed    = &Kind{name: "download failed"}
	ErrEmptyFile         = &Kind{name: "download failed: empty file", parent: ErrDownloadFailed}
	ErrSizeExceeded      = &Kind{name: "download failed: size exceeded", parent: ErrDownloadFailed}
	ErrNetwork           = &Kind{name: "download failed: network error", parent: ErrDownloadFailed}
	ErrFormatUnavailable = &Kind{name: "download failed: format unavailable", parent: ErrDownloadFailed}

	ErrModelLoadFailed     = &Kind{name: "model load failed"}
	ErrTranscriptionFailed = &Kind{name: "transcription failed"}
	ErrCleanupFailed       = &Kind{name: "cleanup failed"}
)

var kinds = []*Kind{
	ErrURLInvalid, ErrVideoIDUnresolvable,
	ErrEmptyFile, ErrSizeExceeded, ErrNetwork, ErrFormatUnavailable, ErrDownloadFailed,
	ErrModelLoadFailed, ErrTranscriptionFailed, ErrCleanupFailed,
}

// Error attaches an operation and an underlying cause to a Kind.
type Error struct {
	Kind *Kind
	Op   string
	Err  error
}

func NewError(kind *Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Is(target error) bool { return e.Kind.Is(target) }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the most specific Kind in err's chain, or nil.
func KindOf(err error) *Kind {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
