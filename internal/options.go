package internal

import (
	"time"

	"go.uber.org/zap"

	"github.com/frankli0324/go-httpsock/internal/dialer"
	"github.com/frankli0324/go-httpsock/internal/inflate"
	"github.com/frankli0324/go-httpsock/internal/redirect"
)

const Version = "1.0.0"

var DefaultUserAgent = "Mozilla/5.0 (compatible; httpsock/" + Version + "; +https://github.com/frankli0324/go-httpsock)"

const DefaultTimeout = 60 * time.Second

// defaultInflater is injected into every Connection without an
// Options.Inflater.
var defaultInflater = inflate.Detect()

// Options configures a Connection. The zero value is usable.
type Options struct {
	// Timeout bounds every socket operation: dial, each write and
	// each read phase.
	Timeout time.Duration
	// Host overrides the Host header, e.g. when dialing 127.0.0.1
	// on behalf of www.example.com.
	Host string
	// Port and Scheme take priority over the ones parsed from the URL.
	Port   int
	Scheme string
	// Close decides the Connection header: "close" unless it is
	// explicitly false. An explicit true also prevents Close(true)
	// from keeping the socket.
	Close *bool

	UseCookies bool

	Redirects        int
	RedirectMethod   string
	RedirectPreserve redirect.Preserve

	// Decode may be "gzip" to request and transparently decode gzip
	// content encoding.
	Decode string

	Method   string
	Protocol string

	Dialer   dialer.Dialer
	Inflater inflate.Inflater
	Logger   *zap.Logger
}

// Bool is a helper for Options.Close.
func Bool(b bool) *bool {
	return &b
}

func (o *Options) Clone() *Options {
	if o == nil {
		return &Options{}
	}
	c := *o
	if o.Close != nil {
		c.Close = Bool(*o.Close)
	}
	return &c
}

func (o *Options) withDefaults() *Options {
	n := o.Clone()
	if n.Timeout <= 0 {
		n.Timeout = DefaultTimeout
	}
	if n.Logger == nil {
		n.Logger = zap.NewNop()
	}
	if n.Dialer == nil {
		n.Dialer = &dialer.CoreDialer{Logger: n.Logger.Named("dialer")}
	}
	if n.Inflater == nil {
		n.Inflater = defaultInflater
	}
	return n
}

func (o *Options) keepAlive() bool {
	return o.Close != nil && !*o.Close
}

func (o *Options) forceClose() bool {
	return o.Close != nil && *o.Close
}
