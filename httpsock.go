package httpsock

import (
	"github.com/frankli0324/go-httpsock/internal"
	"github.com/frankli0324/go-httpsock/internal/cookie"
	"github.com/frankli0324/go-httpsock/internal/errors"
	"github.com/frankli0324/go-httpsock/internal/model"
	"github.com/frankli0324/go-httpsock/internal/redirect"
)

const Version = internal.Version

var DefaultUserAgent = internal.DefaultUserAgent

type Connection = internal.Connection
type Options = internal.Options
type Timings = internal.Timings

type HeaderMap = model.HeaderMap
type State = model.State
type Cookie = cookie.Cookie
type Preserve = redirect.Preserve

const (
	StateError       = model.StateError
	StateCreated     = model.StateCreated
	StateOpen        = model.StateOpen
	StateHeadWritten = model.StateHeadWritten
	StateBodyWritten = model.StateBodyWritten
	StateHeadRead    = model.StateHeadRead
	StateRedirected  = model.StateRedirected
	StateBodyRead    = model.StateBodyRead
)

const (
	PreserveByStatus = redirect.PreserveByStatus
	PreserveAlways   = redirect.PreserveAlways
	PreserveNever    = redirect.PreserveNever
)

// New prepares a Connection to rawURL, either a full URL or the
// "host[:port][/path]" shorthand. A nil opts is valid.
func New(rawURL string, opts *Options) (*Connection, error) {
	return internal.New(rawURL, opts)
}

func Bool(b bool) *bool { return internal.Bool(b) }

func NewHeaderMap() *HeaderMap { return model.NewHeaderMap() }

// ParseHeaderLines builds a HeaderMap from a raw "Key: value" block.
func ParseHeaderLines(raw string) *HeaderMap { return model.ParseHeaderLines(raw) }

type Error = errors.Error
type ErrorKind = errors.Kind

const (
	ConnectFailure     = errors.ConnectFailure
	WriteFailure       = errors.WriteFailure
	ReadFailure        = errors.ReadFailure
	EmptyResponse      = errors.EmptyResponse
	MalformedResponse  = errors.MalformedResponse
	InvalidHeader      = errors.InvalidHeader
	ProtocolStateError = errors.ProtocolStateError
	DecodeError        = errors.DecodeError
	InvalidRequest     = errors.InvalidRequest
)

// Sentinels for errors.Is, matching any error of the same kind.
var (
	ErrConnect       = errors.ErrConnect
	ErrWrite         = errors.ErrWrite
	ErrRead          = errors.ErrRead
	ErrEmptyResponse = errors.ErrEmptyResponse
	ErrMalformed     = errors.ErrMalformed
	ErrInvalidHeader = errors.ErrInvalidHeader
	ErrState         = errors.ErrState
	ErrDecode        = errors.ErrDecode
	ErrInvalid       = errors.ErrInvalid
)

// KindOf extracts the ErrorKind of err.
func KindOf(err error) (ErrorKind, bool) { return errors.KindOf(err) }
