package dialer

import (
	"github.com/frankli0324/go-httpsock/internal/dialer"
)

// Dialers are responsible for creating the underlying streams that a
// Connection writes requests to and reads responses from, for example a
// raw TCP connection, a TLS session or a tunnel through an HTTP proxy.
//
// A Dialer MUST NOT hold connection state: every Connection owns the
// stream it dialed and closes it itself. It SHOULD hold the connection
// related configs like [ProxyConfig] or *[crypto/tls.Config].
type Dialer = dialer.Dialer

// Target is the scheme, host and port a Connection asks a Dialer for.
type Target = dialer.Target

// CoreDialer is the default implementation of the [Dialer] interface. It
// is used when Options.Dialer is nil. TLS is negotiated for the https,
// tls and ssl schemes, always offering http/1.1 only.
type CoreDialer = dialer.CoreDialer

type ProxyConfig = dialer.ProxyConfig

// ProxyError is returned when a proxy refuses the CONNECT request.
type ProxyError = dialer.ProxyError

// we need a dedicated resolver for two scenarios:
//
//  1. Resolve remote address locally in proxied requests
//  2. to customize the DNS server used for resolving hostname
//
// the standard library only follows the system configuration
// (e.g. /etc/resolv.conf), leaving us the [net.Resolver.Dial] hook
// with a Go Resolver as the only way of choosing a server.
type ResolveConfig = dialer.ResolveConfig
