// Package errkind defines the error taxonomy shared across the
// ingest and bootstrap paths, and a heuristic classifier for
// transport-level failures, adapted from the teacher's
// rtsp.ClassifyGStreamerError category scheme.
package errkind

import (
	"errors"
	"strings"
)

// Kind distinguishes fatal-at-startup errors from per-camera,
// per-frame, and per-connection failures so callers can apply the
// right recovery policy without string-matching error text.
type Kind int

const (
	// Config covers missing/invalid camera configuration: zero
	// cameras, duplicate ids, malformed manifests. Fatal at startup.
	Config Kind = iota
	// Resource covers allocation or goroutine-spawn failure.
	// CPU-affinity failure is deliberately NOT in this category: it
	// degrades to a no-op rather than becoming fatal.
	Resource
	// Network covers per-camera connection failures, transient or
	// persistent, recovered by backoff reconnect.
	Network
	// Decode covers per-frame decode failure. Recoverable: the
	// buffer is recycled and the worker continues.
	Decode
	// Protocol covers wire-format violations within one camera's
	// stream: timestamp regression, buffer size mismatch. Fatal for
	// that camera's worker only.
	Protocol
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case Resource:
		return "resource"
	case Network:
		return "network"
	case Decode:
		return "decode"
	case Protocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error pairs a classification with an underlying cause, matching
// the teacher's fmt.Errorf("...: %w", err) wrapping convention while
// still letting callers branch on Kind via errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and an operation label.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ClassifyNetworkError categorizes a raw connection error by message
// heuristics, mirroring ClassifyGStreamerError's keyword-matching
// approach but over net/io error text instead of a GStreamer GError.
func ClassifyNetworkError(err error) Kind {
	if err == nil {
		return Network
	}
	msg := strings.ToLower(err.Error())

	authKeywords := []string{"unauthorized", "forbidden", "auth", "credentials"}
	for _, kw := range authKeywords {
		if strings.Contains(msg, kw) {
			return Network
		}
	}

	protocolKeywords := []string{"short buffer", "size mismatch", "unexpected eof", "malformed"}
	for _, kw := range protocolKeywords {
		if strings.Contains(msg, kw) {
			return Protocol
		}
	}

	return Network
}
