// Package fault classifies failures of remote platform calls and manifest
// parsing into a small set of kinds shared by every stage of the flow.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	Auth     Kind = "auth"
	NotFound Kind = "not-found"
	Conflict Kind = "conflict"
	Parse    Kind = "parse"
	Remote   Kind = "remote"
)

// Terminal lists the kinds that no retry can fix.
var Terminal = []Kind{Auth, NotFound, Conflict, Parse}

// Error carries the kind of a failure next to the error it came from.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, fault.NotFound) style checks work through the kind.
func (e *Error) Is(target error) bool {
	var k kindError
	if errors.As(target, &k) {
		return e.Kind == Kind(k)
	}
	return false
}

type kindError Kind

func (k kindError) Error() string { return string(k) }

// Sentinel returns an error value usable with errors.Is to test for kind k.
func Sentinel(k Kind) error { return kindError(k) }

var (
	ErrAuth     = Sentinel(Auth)
	ErrNotFound = Sentinel(NotFound)
	ErrConflict = Sentinel(Conflict)
	ErrParse    = Sentinel(Parse)
)

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// FromStatus wraps a non-2xx HTTP response.
func FromStatus(op string, status int, body string) *Error {
	err := fmt.Errorf("status %d: %s", status, body)
	return &Error{Kind: StatusKind(status), Op: op, Status: status, Err: err}
}

func StatusKind(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Auth
	case http.StatusNotFound:
		return NotFound
	case http.StatusConflict:
		return Conflict
	default:
		return Remote
	}
}

// KindOf reports the kind of err, or Remote when err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Remote
}

func IsTerminal(err error) bool {
	k := KindOf(err)
	for _, t := range Terminal {
		if k == t {
			return true
		}
	}
	return false
}
