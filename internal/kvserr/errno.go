// Package kvserr defines the errno-carrying error used across the KVS core
// (see spec §7 Error Handling Design).
package kvserr

import (
	"errors"
	"fmt"
)

// Errno enumerates the error kinds handlers may report back to clients.
type Errno int

const (
	// ENone indicates success; not normally wrapped into an Error.
	ENone Errno = iota
	// EProtocol is a malformed or undecodable message.
	EProtocol
	// ENotFound is §7 "not-found": key missing at resolution terminal.
	ENotFound
	// ENotDir is §7 "not-directory": wrong terminal kind for READDIR.
	ENotDir
	// EIsDir is §7 "is-directory": wrong terminal kind for a file op.
	EIsDir
	// ELoop is §7 "loop": symlink follow limit exceeded.
	ELoop
	// EInvalid is §7 "invalid": bad dirent, bad reference, bad arguments.
	EInvalid
	// ENoEntity is §7 "no-entity": commit op references a blob that the
	// content store also cannot supply.
	ENoEntity
	// ETransient is §7 "transient": content-store I/O error.
	ETransient
)

func (e Errno) String() string {
	switch e {
	case ENone:
		return "none"
	case EProtocol:
		return "protocol"
	case ENotFound:
		return "not-found"
	case ENotDir:
		return "not-directory"
	case EIsDir:
		return "is-directory"
	case ELoop:
		return "loop"
	case EInvalid:
		return "invalid"
	case ENoEntity:
		return "no-entity"
	case ETransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by core operations. Op names the
// operation that failed (e.g. "lookup.Resolve", "commit.Process").
type Error struct {
	Errno Errno
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Errno, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Errno)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(op string, errno Errno) *Error {
	return &Error{Op: op, Errno: errno}
}

// Wrap builds an *Error wrapping an underlying cause.
func Wrap(op string, errno Errno, err error) *Error {
	return &Error{Op: op, Errno: errno, Err: err}
}

// As extracts the Errno of err if it (or something it wraps) is *Error.
// Unrecognized errors (anything that is not an *Error) report EInvalid.
func As(err error) Errno {
	if err == nil {
		return ENone
	}
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Errno
	}
	return EInvalid
}
