package dialer

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/frankli0324/go-httpsock/internal/model"
	"github.com/frankli0324/go-httpsock/internal/transport"
)

var zeroDialer net.Dialer
var customDnsDialer = net.Dialer{
	Resolver: &customServerResolver,
}

func (d *CoreDialer) Dial(ctx context.Context, t Target) (net.Conn, error) {
	host, err := transport.ASCIIHost(t.Host)
	if err != nil {
		return nil, err
	}
	port := strconv.Itoa(t.Port)
	if t.Port == 0 {
		port = strconv.Itoa(model.DefaultPort(t.Scheme))
	}
	t.Host = host

	conn, err := d.tryDialProxy(ctx, t)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		// as of now net.Dialer could handle current DNS configurations
		network, dialer, dialctx, dst := "tcp", &zeroDialer, ctx, net.JoinHostPort(host, port)

		if cfg := d.ResolveConfig; cfg != nil {
			network = cfg.tcpNetwork()
			if static, ok := cfg.StaticHosts[host]; ok {
				dst = net.JoinHostPort(static, port)
			}
			if dns := cfg.CustomDNSServer; dns != "" {
				dialctx = dnsServerCtx{dialctx, dns}
				dialer = &customDnsDialer
			}
		}

		conn, err = dialer.DialContext(dialctx, network, dst)
		if err != nil {
			return nil, err
		}
		d.logger().Debug("dialed", zap.String("addr", dst), zap.String("network", network))
	}
	if model.IsTLS(t.Scheme) {
		c, err := d.handshake(ctx, conn, d.TLSConfig, host)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}
	return conn, nil
}

// handshake wraps conn in TLS. Only HTTP/1.1 is offered over ALPN
// since nothing else can be spoken on the resulting stream.
func (d *CoreDialer) handshake(ctx context.Context, conn net.Conn, cfg *tls.Config, serverName string) (*tls.Conn, error) {
	config := cfg.Clone()
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		config.ServerName = serverName
	}
	config.NextProtos = []string{"http/1.1"}
	c := tls.Client(conn, config)
	if err := c.HandshakeContext(ctx); err != nil {
		return nil, err
	}
	d.logger().Debug("tls handshake done",
		zap.String("server_name", config.ServerName),
		zap.Uint16("version", c.ConnectionState().Version))
	return c, nil
}
