package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/frankli0324/go-httpsock/internal/model"
	"github.com/frankli0324/go-httpsock/internal/transport"
)

type ProxyConfig struct {
	TLSConfig      *tls.Config // the [*tls.Config] to use with proxy, if nil, *[CoreDialer.TLSConfig] will be used
	ResolveLocally bool
	ResolveConfig  *ResolveConfig // overrides the resolver config for dialer for proxy
}

func (c *ProxyConfig) Clone() *ProxyConfig {
	if c == nil {
		return nil
	}
	return &ProxyConfig{
		TLSConfig:      c.TLSConfig.Clone(),
		ResolveLocally: c.ResolveLocally,
		ResolveConfig:  c.ResolveConfig.Clone(),
	}
}

// ProxyError is returned when the proxy refuses to open a tunnel.
type ProxyError struct {
	Code    int
	Message string
	Body    []byte
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("proxy server returned error. status:%d %s, body:%s", e.Code, e.Message, string(e.Body))
}

func (d *CoreDialer) tryDialProxy(ctx context.Context, t Target) (net.Conn, error) {
	if d.GetProxy != nil {
		proxy, perr := d.GetProxy(ctx, t)
		if perr != nil {
			return nil, perr
		}
		if proxy != "" {
			proxyU, perr := url.Parse(proxy)
			if perr != nil {
				return nil, perr
			}
			return d.DialContextOverProxy(ctx, t, proxyU)
		}
	}
	return nil, nil
}

// DialContextOverProxy opens a CONNECT tunnel to remote through an
// http(s) proxy. The returned stream is not TLS wrapped for remote.
func (d *CoreDialer) DialContextOverProxy(ctx context.Context, remote Target, proxy *url.URL) (net.Conn, error) {
	if proxy.Scheme != "http" && proxy.Scheme != "https" { // TODO: socks
		return nil, errors.New("unsupported proxy scheme:" + proxy.Scheme)
	}
	hp := proxy.Host
	if proxy.Port() == "" {
		hp = net.JoinHostPort(proxy.Hostname(), strconv.Itoa(model.DefaultPort(proxy.Scheme)))
	}

	conn, err := zeroDialer.DialContext(ctx, "tcp", hp)
	if err != nil {
		return nil, err
	}

	cfg := d.ProxyConfig
	if cfg == nil {
		cfg = &ProxyConfig{}
	}
	if proxy.Scheme == "https" {
		tlsCfg := cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = d.TLSConfig
		}
		c, err := d.handshake(ctx, conn, tlsCfg, proxy.Hostname())
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = c
	}

	addr, port := remote.Host, strconv.Itoa(remote.Port)
	if cfg.ResolveLocally {
		dnsCfg := cfg.ResolveConfig.Merge(d.ResolveConfig)
		if res, ok := dnsCfg.StaticHosts[addr]; ok {
			addr = res
		} else {
			ips, err := d.lookup(ctx, dnsCfg, addr)
			if err != nil {
				conn.Close()
				return nil, err
			}
			addr = ips[rand.Intn(len(ips))].String()
		}
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	br, err := connect(conn, net.JoinHostPort(addr, port), remote.Addr(), proxy.User)
	if err != nil {
		conn.Close()
		return nil, err
	}
	d.logger().Debug("proxy tunnel established", zap.String("proxy", hp), zap.String("remote", remote.Addr()))
	if br.Buffered() > 0 {
		return &bufferedConn{conn, br}, nil
	}
	return conn, nil
}

// connect writes the CONNECT request with this module's own head writer
// and reads the proxy's reply with its head parser.
func connect(conn net.Conn, target, hostHeader string, user *url.Userinfo) (*bufio.Reader, error) {
	req := &model.Request{Method: "CONNECT", Path: target, Header: model.NewHeaderMap()}
	req.Header.Set("host", hostHeader)
	if auth := user.String(); auth != "" {
		if u, err := url.PathUnescape(auth); err == nil {
			auth = u
		}
		req.Header.Set("proxy-authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(auth)))
	}
	_, head, err := transport.BuildHead(req, transport.HeadConfig{KeepAlive: true})
	if err != nil {
		return nil, err
	}
	if err := transport.Write(conn, head); err != nil {
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp := &model.Response{}
	if _, err := transport.ReadHead(br, resp); err != nil {
		return nil, err
	}
	if resp.Code != 200 {
		perr := &ProxyError{Code: resp.Code, Message: resp.Message}
		if s, n, err := transport.SelectStrategy("CONNECT", resp); err == nil && s == transport.FixedLength {
			if b, err := transport.ReadBody(br, s, n); err == nil {
				perr.Body = b.Data
			}
		}
		return nil, perr
	}
	return br, nil
}

// bufferedConn keeps bytes the proxy sent right after its reply.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func (c *bufferedConn) NetConn() net.Conn {
	return c.Conn
}
