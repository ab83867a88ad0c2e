// Package syncerr defines the error taxonomy shared by the remote facade and
// the push/pull engines.
//
// Errors are classified once, at the remote boundary, into a Kind. Callers
// branch on the Kind (or use errors.As on the typed errors) instead of
// matching response bodies.
package syncerr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind is the coarse classification of a failure.
type Kind int

const (
	// KindUnknown is returned for nil errors.
	KindUnknown Kind = iota
	// KindConflict means the remote rejected a create because the object exists.
	KindConflict
	// KindNotFound means the remote object does not exist or is not visible.
	KindNotFound
	// KindTransient covers network failures and retryable server responses.
	KindTransient
	// KindFatal covers configuration problems and non-retryable rejections.
	KindFatal
	// KindIntegrity means a mapping write would violate a uniqueness rule.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Classified is implemented by errors that know their own Kind.
type Classified interface {
	ErrorKind() Kind
}

// ConfigurationError reports missing credentials, owner/repo, or an unlinked
// roadmap. It aborts a run before any network call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ErrorKind implements Classified.
func (e *ConfigurationError) ErrorKind() Kind { return KindFatal }

// RemoteNotFoundError reports that a remote object could not be found,
// including when every project resolution strategy was exhausted.
type RemoteNotFoundError struct {
	Kind string
	Ref  string
	Err  error
}

func (e *RemoteNotFoundError) Error() string {
	msg := fmt.Sprintf("remote %s not found: %s", e.Kind, e.Ref)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteNotFoundError) Unwrap() error { return e.Err }

// ErrorKind implements Classified.
func (e *RemoteNotFoundError) ErrorKind() Kind { return KindNotFound }

// RemoteConflictError reports a create rejected because the object already
// exists. The facade recovers from it by re-fetching.
type RemoteConflictError struct {
	Kind string
	Name string
	Err  error
}

func (e *RemoteConflictError) Error() string {
	return fmt.Sprintf("remote %s %q already exists", e.Kind, e.Name)
}

func (e *RemoteConflictError) Unwrap() error { return e.Err }

// ErrorKind implements Classified.
func (e *RemoteConflictError) ErrorKind() Kind { return KindConflict }

// RemoteTransientError wraps any other failed remote operation.
type RemoteTransientError struct {
	Op  string
	Err error
}

func (e *RemoteTransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteTransientError) Unwrap() error { return e.Err }

// ErrorKind implements Classified.
func (e *RemoteTransientError) ErrorKind() Kind { return KindTransient }

// MappingIntegrityError reports a mapping write that would break one of the
// uniqueness rules of the mapping store.
type MappingIntegrityError struct {
	LocalID   string
	LocalType string
	RemoteID  string
	Reason    string
}

func (e *MappingIntegrityError) Error() string {
	return fmt.Sprintf("mapping integrity: %s %s -> %s: %s", e.LocalType, e.LocalID, e.RemoteID, e.Reason)
}

// ErrorKind implements Classified.
func (e *MappingIntegrityError) ErrorKind() Kind { return KindIntegrity }

// Classify returns the Kind of err, looking through wrapped errors.
// Unclassified network and deadline errors are transient; anything else is fatal.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var c Classified
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindFatal
}

// IsConflict reports whether err classifies as a conflict.
func IsConflict(err error) bool { return Classify(err) == KindConflict }

// IsNotFound reports whether err classifies as not found.
func IsNotFound(err error) bool { return Classify(err) == KindNotFound }

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
