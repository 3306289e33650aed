package internal

import (
	"bufio"
	"context"
	stderrors "errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/frankli0324/go-httpsock/internal/cookie"
	"github.com/frankli0324/go-httpsock/internal/dialer"
	"github.com/frankli0324/go-httpsock/internal/errors"
	"github.com/frankli0324/go-httpsock/internal/model"
	"github.com/frankli0324/go-httpsock/internal/redirect"
	"github.com/frankli0324/go-httpsock/internal/transport"
	"github.com/frankli0324/go-httpsock/utils/nettools"
)

// Connection drives one request/response exchange over a raw socket,
// and further exchanges on the same socket after Reuse. Every phase
// method runs the phases before it when needed, so calling ReadBody on
// a fresh Connection opens, writes and reads everything.
//
// A Connection must not be used from multiple goroutines at once.
type Connection struct {
	opts   *Options
	logger *zap.Logger

	scheme string
	host   string
	port   int

	state model.State
	err   error

	req  model.Request
	resp model.Response
	jar  cookie.Jar

	redirect *Connection

	conn net.Conn
	br   *bufio.Reader
	eof  bool // the peer finished sending, the socket can't carry another response

	timings Timings
}

// New prepares a Connection to rawURL, which is either a full URL or
// the host[:port][/path] shorthand. Nothing is dialed yet.
func New(rawURL string, opts *Options) (*Connection, error) {
	o := opts.withDefaults()
	if o.Decode != "" && o.Decode != "gzip" {
		return nil, errors.New(errors.InvalidRequest, "unsupported decode option "+strconv.Quote(o.Decode)).At("new", "")
	}
	t, err := parseTarget(rawURL, o)
	if err != nil {
		return nil, errors.ErrInvalid.At("new", "").Wrap(err)
	}

	c := &Connection{
		opts:   o,
		scheme: t.scheme,
		host:   t.host,
		port:   t.port,
	}
	c.logger = o.Logger.Named("httpsock").With(zap.String("host", c.host), zap.Int("port", c.port))
	c.req = model.Request{
		Host:     c.host,
		Method:   o.Method,
		Protocol: o.Protocol,
		Header:   model.NewHeaderMap(),
	}
	c.req.Header.Set("accept", "*/*")
	c.req.Header.Set("user-agent", DefaultUserAgent)
	c.req.Path = normalizePath(t.path)
	return c, nil
}

func (c *Connection) addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// fail moves c to the error state and closes the socket. The first
// failure is kept and returned by every later operation. Kinds that
// are not fatal are returned without touching c.
func (c *Connection) fail(kind *errors.Error, op string, err error) error {
	e := kind.At(op, c.addr()).Wrap(err)
	if !e.Kind.Fatal() {
		return e
	}
	c.state = model.StateError
	if c.err == nil {
		c.err = e
	}
	c.logger.Debug("connection failed", zap.String("op", op), zap.Error(err))
	c.closeSocket()
	return e
}

func (c *Connection) misuse(op, msg string) error {
	return c.fail(errors.New(errors.ProtocolStateError, msg), op, nil)
}

func (c *Connection) advance(s model.State, d time.Duration) {
	c.state = s
	c.logger.Debug("state changed", zap.Stringer("state", s), zap.Duration("took", d))
}

func (c *Connection) setDeadline() {
	if c.opts.Timeout > 0 {
		c.conn.SetDeadline(time.Now().Add(c.opts.Timeout))
	}
}

func (c *Connection) Open() error {
	return c.OpenContext(context.Background())
}

// OpenContext dials the target. The dial is bounded by both ctx and
// the configured timeout.
func (c *Connection) OpenContext(ctx context.Context) error {
	if c.state == model.StateError {
		return c.err
	}
	if c.state >= model.StateOpen {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()
	start := c.timings.begin("open")
	conn, err := c.opts.Dialer.Dial(ctx, dialer.Target{Scheme: c.scheme, Host: c.host, Port: c.port})
	d := c.timings.end("open", start)
	if err != nil {
		return c.fail(errors.ErrConnect, "open", err)
	}
	c.conn, c.br, c.eof = conn, bufio.NewReader(conn), false
	c.advance(model.StateOpen, d)
	return nil
}

// authority is the host and port the request is made on behalf of:
// the Host option when set, else the dialed address.
func (c *Connection) authority() (string, int) {
	if c.opts.Host == "" {
		return c.host, c.port
	}
	if h, p, err := net.SplitHostPort(c.opts.Host); err == nil {
		if port, err := strconv.Atoi(p); err == nil {
			return h, port
		}
		return h, c.port
	}
	return strings.Trim(c.opts.Host, "[]"), c.port
}

// hostHeader returns the host field derived from the dialed address
// and the one from the Host option, if any.
func (c *Connection) hostHeader() (host, override string, err error) {
	if c.opts.Host != "" {
		if override, err = transport.ASCIIHost(c.opts.Host); err != nil {
			return "", "", err
		}
	}
	host, err = transport.ASCIIHost(c.host)
	if err != nil {
		return "", "", err
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if c.port != model.DefaultPort(c.scheme) {
		host += ":" + strconv.Itoa(c.port)
	}
	return host, override, nil
}

// WriteHead sends the request line and headers. Fields in h are merged
// into the request first. Passing fields after a completed exchange on a
// live socket starts a new request on it, see Reuse.
func (c *Connection) WriteHead(h *model.HeaderMap) error {
	if h.Len() > 0 {
		c.Reuse(true)
	}
	if c.state == model.StateError {
		return c.err
	}
	if c.state >= model.StateHeadWritten {
		if h.Len() > 0 {
			return c.misuse("writeHead", "can't set head, request already sent")
		}
		return nil
	}
	if h.Len() > 0 {
		c.req.Header.Merge(h)
	}

	host, override, err := c.hostHeader()
	if err != nil {
		return c.fail(errors.ErrInvalidHeader, "writeHead", err)
	}
	sent, head, err := transport.BuildHead(&c.req, transport.HeadConfig{
		Host:         host,
		HostOverride: override,
		UserAgent:    DefaultUserAgent,
		KeepAlive:    c.opts.keepAlive(),
		AcceptGzip:   c.opts.Decode == "gzip",
	})
	if err != nil {
		return c.fail(errors.ErrInvalidHeader, "writeHead", err)
	}

	if err := c.Open(); err != nil {
		return err
	}
	c.req.Header = sent

	c.setDeadline()
	start := c.timings.begin("writeHead")
	err = transport.Write(c.conn, head)
	d := c.timings.end("writeHead", start)
	if err != nil {
		return c.fail(errors.ErrWrite, "writeHead", err)
	}
	c.advance(model.StateHeadWritten, d)
	return nil
}

// Write sends the request body, writing the head first if needed. body
// accepts the types of SetRequestBody.
func (c *Connection) Write(body interface{}, h *model.HeaderMap) error {
	data, contentType, err := model.EncodeBody(body)
	if err != nil {
		return errors.ErrInvalid.At("write", c.addr()).Wrap(err)
	}
	if len(data) > 0 || h.Len() > 0 {
		c.Reuse(true)
	}
	if c.state == model.StateError {
		return c.err
	}
	if (c.state >= model.StateHeadWritten && len(data) > 0) ||
		(c.state >= model.StateBodyWritten && h.Len() > 0) {
		return c.misuse("write", "can't set head or body, request already sent")
	}
	if c.state >= model.StateBodyWritten {
		return nil
	}
	if len(data) > 0 {
		c.setBody(data, contentType)
	}

	if err := c.WriteHead(h); err != nil {
		return err
	}

	var d time.Duration
	if len(c.req.Body) > 0 {
		c.setDeadline()
		start := c.timings.begin("write")
		err := transport.Write(c.conn, c.req.Body)
		d = c.timings.end("write", start)
		if err != nil {
			return c.fail(errors.ErrWrite, "write", err)
		}
	} else {
		// a reused connection may still carry the previous request's entry
		c.timings.forget("write")
	}
	c.advance(model.StateBodyWritten, d)
	return nil
}

// ReadHead reads and parses the status line and response headers.
func (c *Connection) ReadHead() (*model.HeaderMap, error) {
	if c.state == model.StateError {
		return nil, c.err
	}
	if c.state >= model.StateHeadRead {
		return c.resp.Header, nil
	}
	if err := c.Write(nil, nil); err != nil {
		return nil, err
	}
	if c.conn == nil {
		return nil, c.misuse("readHead", "socket already closed")
	}

	c.setDeadline()
	start := c.timings.begin("readHead")
	eof, err := transport.ReadHead(c.br, &c.resp)
	d := c.timings.end("readHead", start)
	if err != nil {
		if err == transport.ErrEmptyResponse {
			return nil, c.fail(errors.ErrEmptyResponse, "readHead", nil)
		}
		return nil, c.fail(errors.ErrRead, "readHead", err)
	}
	c.eof = eof
	if c.opts.UseCookies {
		c.jar.SetCookies(c.resp.Header.Values("set-cookie"), time.Now())
	}
	c.advance(model.StateHeadRead, d)

	if eof {
		c.logger.Debug("stream ended inside the response head")
		c.Close(true)
	}
	return c.resp.Header, nil
}

// FollowRedirect builds the next hop when the response is a redirect
// the options allow following. It returns nil when there is none. The
// child Connection is owned by c and returned by Redirect afterwards;
// c's socket is closed once the child exists.
func (c *Connection) FollowRedirect() (*Connection, error) {
	if c.state == model.StateError {
		return nil, c.err
	}
	if c.state >= model.StateRedirected {
		return c.redirect, nil
	}
	if _, err := c.ReadHead(); err != nil {
		return nil, err
	}
	if c.state >= model.StateRedirected {
		return c.redirect, nil // socket ended with the head
	}

	plan, err := c.plan()
	if err != nil {
		c.logger.Warn("redirect location not followed", zap.Strings("location", c.resp.Header.Values("location")), zap.Error(err))
	}
	if plan == nil {
		c.advance(model.StateRedirected, 0)
		return nil, nil
	}
	child, err := c.newRedirect(plan)
	if err != nil {
		c.logger.Warn("redirect target not followed", zap.Stringer("location", plan.URL), zap.Error(err))
		c.advance(model.StateRedirected, 0)
		return nil, nil
	}
	c.redirect = child
	c.advance(model.StateRedirected, 0)
	c.logger.Debug("following redirect", zap.Int("code", c.resp.Code), zap.Stringer("location", plan.URL))
	c.Close(false)
	return child, nil
}

func (c *Connection) base() (*url.URL, error) {
	host, port := c.authority()
	return redirect.Base(c.scheme, host, port, c.req.Path)
}

// sameAuthority reports whether u points at the host c made its
// request on behalf of, which is then reached through the same socket
// address.
func (c *Connection) sameAuthority(u *url.URL) bool {
	host, port := c.authority()
	if !strings.EqualFold(u.Scheme, c.scheme) || !strings.EqualFold(u.Hostname(), host) {
		return false
	}
	p := model.DefaultPort(c.scheme)
	if u.Port() != "" {
		p, _ = strconv.Atoi(u.Port())
	} else if p == 0 {
		p = 80
	}
	return p == port
}

func (c *Connection) plan() (*redirect.Plan, error) {
	base, err := c.base()
	if err != nil {
		return nil, err
	}
	return redirect.Resolve(c.resp.Code, c.resp.Header.Values("location"), base, c.opts.Method, redirect.Policy{
		Budget:   c.opts.Redirects,
		Method:   c.opts.RedirectMethod,
		Preserve: c.opts.RedirectPreserve,
	})
}

func (c *Connection) newRedirect(plan *redirect.Plan) (*Connection, error) {
	o := c.opts.Clone()
	o.Host, o.Port, o.Scheme = "", 0, ""
	o.Redirects = plan.Budget
	o.Method = plan.Method
	target := *plan.URL
	if c.opts.Host != "" && c.sameAuthority(plan.URL) {
		// still the virtual host, keep dialing the same address
		o.Host = c.opts.Host
		target.Host = c.addr()
	}
	child, err := New(target.String(), o)
	if err != nil {
		return nil, err
	}

	h := c.req.Header.Clone()
	h.Del("host")
	if plan.KeepBody {
		child.req.Body = c.req.Body
	} else {
		h.Del("content-length")
		h.Del("content-type")
	}
	// TODO: filter cookies by domain and path against the new target
	if valid := c.jar.Valid(time.Now()); len(valid) > 0 {
		h.Set("cookie", cookie.Header(h.Get("cookie"), valid))
		for _, ck := range valid {
			child.jar.Store(ck.Clone())
		}
	}
	child.req.Header = h
	return child, nil
}

// ReadBody reads and decodes the whole response body. The body is nil
// for responses that carry none, and empty but non-nil otherwise.
func (c *Connection) ReadBody() ([]byte, error) {
	if c.state == model.StateError {
		return nil, c.err
	}
	if c.state >= model.StateBodyRead {
		return c.resp.Body, nil
	}
	if _, err := c.ReadHead(); err != nil {
		return nil, err
	}
	if c.state >= model.StateBodyRead || c.conn == nil {
		return c.resp.Body, nil
	}

	s, n, err := transport.SelectStrategy(c.req.EffectiveMethod(), &c.resp)
	if err != nil {
		return nil, c.fail(errors.ErrMalformed, "readBody", err)
	}
	c.setDeadline()
	start := c.timings.begin("readBody")
	b, err := transport.ReadBody(c.br, s, n)
	d := c.timings.end("readBody", start)
	if err != nil {
		var malformed transport.ErrMalformedBody
		if stderrors.As(err, &malformed) {
			return nil, c.fail(errors.ErrMalformed, "readBody", err)
		}
		return nil, c.fail(errors.ErrRead, "readBody", err)
	}
	if b.Short {
		c.logger.Debug("stream ended before the body was complete", zap.Stringer("strategy", s), zap.Int("read", len(b.Data)))
	}
	if b.TrailerErr != nil {
		c.logger.Warn("malformed trailer skipped", zap.Error(b.TrailerErr))
	}
	b.Trailer.Each(func(k string, v []string) {
		for _, v := range v {
			c.resp.Header.Add(k, v)
		}
	})
	c.eof = c.eof || b.EOF
	c.resp.Body = b.Data
	c.advance(model.StateBodyRead, d)
	c.Close(true)

	if c.opts.Decode == "gzip" && len(c.resp.Body) > 0 &&
		strings.EqualFold(strings.TrimSpace(c.resp.Header.Get("content-encoding")), "gzip") {
		out, err := c.opts.Inflater.Inflate(c.resp.Body)
		if err != nil {
			return nil, c.fail(errors.ErrDecode, "readBody", err)
		}
		c.resp.Header.Del("content-encoding")
		c.resp.Body = out
	}
	return c.resp.Body, nil
}

// Read runs the whole exchange: it reads the head, follows every
// redirect and reads the body of the final hop, which it returns.
func (c *Connection) Read() (*Connection, error) {
	if _, err := c.ReadHead(); err != nil {
		return c, err
	}
	res := c
	for {
		next, err := res.FollowRedirect()
		if err != nil {
			return res, err
		}
		if next == nil {
			break
		}
		res = next
	}
	_, err := res.ReadBody()
	return res, err
}

func (c *Connection) keepAlive() bool {
	if c.eof || c.opts.forceClose() {
		return false
	}
	return !strings.EqualFold(strings.TrimSpace(c.resp.Header.Get("connection")), "close")
}

// Close closes the socket and reports whether this call did so. With
// onlyIfNotKeepAlive the socket is kept when neither the options nor
// the response asked to close it.
func (c *Connection) Close(onlyIfNotKeepAlive bool) bool {
	if c.conn == nil {
		return false
	}
	if onlyIfNotKeepAlive && c.keepAlive() {
		return false
	}
	c.closeSocket()
	return true
}

func (c *Connection) closeSocket() {
	if c.conn == nil {
		return
	}
	start := c.timings.begin("close")
	if open, ok := c.timings.Start["open"]; ok {
		c.timings.Phase["total"] = start.Sub(open)
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("closing socket", zap.Error(err))
	}
	c.conn, c.br = nil, nil
	if c.state >= model.StateOpen && c.state < model.StateBodyRead {
		c.advance(model.StateBodyRead, 0)
	}
}

func (c *Connection) alive() bool {
	if c.conn == nil || c.eof {
		return false
	}
	if c.br.Buffered() > 0 {
		return true
	}
	return nettools.Alive(c.conn)
}

// Reuse rewinds a finished exchange to StateOpen so another request can
// be sent on the same socket. It only succeeds in StateBodyRead with a
// live socket. The response is cleared and cookies are kept; with
// clearRequest the body is dropped and the headers trimmed back to
// host, accept and user-agent.
func (c *Connection) Reuse(clearRequest bool) bool {
	if c.state != model.StateBodyRead || !c.alive() {
		return false
	}
	c.resp.Reset()
	c.redirect = nil
	if clearRequest {
		c.req.Body = nil
		c.req.Header.Retain("host", "accept", "user-agent")
	}
	c.advance(model.StateOpen, 0)
	return true
}

// Derive copies the configuration, request and cookies of c into a new
// Connection in StateCreated, without socket or response.
func (c *Connection) Derive() *Connection {
	d := &Connection{
		opts:   c.opts.Clone(),
		logger: c.logger,
		scheme: c.scheme,
		host:   c.host,
		port:   c.port,
		req:    c.req,
		jar:    *c.jar.Clone(),
	}
	d.req.Header = c.req.Header.Clone()
	d.req.Body = append([]byte(nil), c.req.Body...)
	return d
}
