package model

import "strings"

// State is the phase of a connection's request/response cycle.
// States only move forward, except for the explicit reuse transition
// from StateBodyRead back to StateOpen.
type State int

const (
	StateError State = iota - 1
	StateCreated
	StateOpen
	StateHeadWritten
	StateBodyWritten
	StateHeadRead
	StateRedirected
	StateBodyRead
)

func (s State) String() string {
	switch s {
	case StateError:
		return "error"
	case StateCreated:
		return "created"
	case StateOpen:
		return "open"
	case StateHeadWritten:
		return "head-written"
	case StateBodyWritten:
		return "body-written"
	case StateHeadRead:
		return "head-read"
	case StateRedirected:
		return "redirected"
	case StateBodyRead:
		return "body-read"
	default:
		return "unknown"
	}
}

const DefaultProtocol = "HTTP/1.1"

type Request struct {
	Host     string
	Path     string
	Method   string // explicit override; empty means derived from Body
	Protocol string
	Header   *HeaderMap
	Body     []byte
}

// EffectiveMethod is the method that goes on the request line:
// the override upper-cased, else POST with a body and GET without.
func (r *Request) EffectiveMethod() string {
	if r.Method != "" {
		return strings.ToUpper(r.Method)
	}
	if len(r.Body) > 0 {
		return "POST"
	}
	return "GET"
}

func (r *Request) EffectiveProtocol() string {
	if r.Protocol == "" {
		return DefaultProtocol
	}
	return r.Protocol
}

type Response struct {
	Proto   string
	Code    int
	RawCode string // status token as received, kept even when not numeric
	Message string
	Header  *HeaderMap
	Body    []byte
}

// Reset clears every field, used when a connection is reused.
func (r *Response) Reset() {
	*r = Response{}
}
