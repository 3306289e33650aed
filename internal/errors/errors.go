package errors

import (
	"strconv"
)

// Kind classifies an [Error] by the phase that produced it.
type Kind int

const (
	ConnectFailure Kind = iota
	WriteFailure
	ReadFailure
	EmptyResponse
	MalformedResponse
	InvalidHeader
	ProtocolStateError
	DecodeError
	InvalidRequest
)

func (k Kind) String() string {
	switch k {
	case ConnectFailure:
		return "connect failure"
	case WriteFailure:
		return "write failure"
	case ReadFailure:
		return "read failure"
	case EmptyResponse:
		return "empty response"
	case MalformedResponse:
		return "malformed response"
	case InvalidHeader:
		return "invalid header"
	case ProtocolStateError:
		return "protocol state error"
	case DecodeError:
		return "decode error"
	case InvalidRequest:
		return "invalid request"
	default:
		return "unknown error kind " + strconv.Itoa(int(k))
	}
}

// Fatal reports whether errors of this kind poison the connection.
// state misuse and request validation leave the connection untouched
func (k Kind) Fatal() bool {
	return k != ProtocolStateError && k != InvalidHeader && k != InvalidRequest
}

type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "open", "readHead"
	Addr string // host:port of the peer, if known
	msg  string
	error
}

func (e *Error) Error() string {
	msg := "httpsock: " + e.Kind.String()
	if e.Op != "" {
		msg += " in " + e.Op
	}
	if e.Addr != "" {
		msg += " (" + e.Addr + ")"
	}
	if e.msg != "" {
		msg += ": " + e.msg
	}
	if e.error != nil {
		msg += ", error: " + e.error.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.error
}

// Is matches any *Error of the same Kind, so the exported sentinels
// work with errors.Is.
func (e *Error) Is(err error) bool {
	if t, ok := err.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Wrap returns a copy of e carrying err as its cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.error = err
	return &c
}

// At returns a copy of e annotated with the operation and peer address.
func (e *Error) At(op, addr string) *Error {
	c := *e
	c.Op, c.Addr = op, addr
	return &c
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

var (
	ErrConnect       = New(ConnectFailure, "")
	ErrWrite         = New(WriteFailure, "")
	ErrRead          = New(ReadFailure, "")
	ErrEmptyResponse = New(EmptyResponse, "stream closed before any byte was read")
	ErrMalformed     = New(MalformedResponse, "")
	ErrInvalidHeader = New(InvalidHeader, "")
	ErrState         = New(ProtocolStateError, "")
	ErrDecode        = New(DecodeError, "")
	ErrInvalid       = New(InvalidRequest, "")
)

// KindOf extracts the Kind of err, reporting false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}
