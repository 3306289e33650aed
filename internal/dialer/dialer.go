package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"go.uber.org/zap"
)

// Target is the endpoint a connection is opened to.
type Target struct {
	Scheme string
	Host   string // may be an IDN, converted before use
	Port   int
}

func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Dialers handle pretty much everything related to the actual connection,
// including setting a proxy, setting resolvers, wrapping TLS, etc.
type Dialer interface {
	// Dial returns a connected byte stream to t. Cancelling ctx aborts
	// the dial, it has no effect on the returned connection.
	Dial(ctx context.Context, t Target) (net.Conn, error)
}

type CoreDialer struct {
	ResolveConfig *ResolveConfig

	TLSConfig *tls.Config // the config to use

	GetProxy    func(ctx context.Context, t Target) (string, error)
	ProxyConfig *ProxyConfig

	Logger *zap.Logger
}

func (d *CoreDialer) Clone() *CoreDialer {
	return &CoreDialer{
		ResolveConfig: d.ResolveConfig.Clone(),
		TLSConfig:     d.TLSConfig.Clone(),
		GetProxy:      d.GetProxy,
		ProxyConfig:   d.ProxyConfig.Clone(),
		Logger:        d.Logger,
	}
}

func (d *CoreDialer) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
