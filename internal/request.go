package internal

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/frankli0324/go-httpsock/internal/cookie"
	"github.com/frankli0324/go-httpsock/internal/errors"
	"github.com/frankli0324/go-httpsock/internal/model"
)

type target struct {
	scheme, host string
	port         int
	path         string
}

// parseTarget accepts "scheme://host[:port][/path][?query]" as well as
// the "host[:port][/path]" shorthand. Scheme and Port options take
// priority over what the URL carries.
func parseTarget(raw string, o *Options) (t target, err error) {
	raw = strings.TrimSpace(raw)
	var portStr string
	if i := strings.Index(raw, "://"); i > 0 && i < 7 {
		u, err := url.Parse(raw)
		if err != nil {
			return t, err
		}
		t.scheme, t.host, portStr = strings.ToLower(u.Scheme), u.Hostname(), u.Port()
		t.path = u.EscapedPath()
		if u.RawQuery != "" {
			t.path += "?" + u.RawQuery
		}
	} else {
		hostport, path, hasPath := strings.Cut(raw, "/")
		if hasPath {
			t.path = "/" + path
		}
		t.host = hostport
		if h, p, err := net.SplitHostPort(hostport); err == nil {
			t.host, portStr = h, p
		} else if strings.HasPrefix(hostport, "[") && strings.HasSuffix(hostport, "]") {
			t.host = hostport[1 : len(hostport)-1]
		}
	}
	if t.host == "" {
		return t, fmt.Errorf("missing host in %q", raw)
	}

	if o.Scheme != "" {
		t.scheme = strings.ToLower(o.Scheme)
	} else if t.scheme == "" {
		t.scheme = "http"
	}
	switch {
	case o.Port > 0:
		t.port = o.Port
	case portStr != "":
		t.port, err = strconv.Atoi(portStr)
		if err != nil || t.port <= 0 || t.port > 65535 {
			return t, fmt.Errorf("invalid port %q", portStr)
		}
	default:
		if t.port = model.DefaultPort(t.scheme); t.port == 0 {
			t.port = 80
		}
	}
	return t, nil
}

func normalizePath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (c *Connection) mutable(op string) error {
	if c.state == model.StateError {
		return c.err
	}
	if c.state >= model.StateHeadWritten {
		return c.misuse(op, "request already sent")
	}
	return nil
}

// SetPath sets the request target, adding the leading slash if missing.
func (c *Connection) SetPath(p string) error {
	if err := c.mutable("setPath"); err != nil {
		return err
	}
	c.req.Path = normalizePath(p)
	return nil
}

func (c *Connection) SetRequestHeader(k, v string) error {
	if err := c.mutable("setRequestHeader"); err != nil {
		return err
	}
	c.req.Header.Set(k, v)
	return nil
}

// SetRequestHeaders replaces the request fields present in h. Use
// model.ParseHeaderLines to pass a raw header block.
func (c *Connection) SetRequestHeaders(h *model.HeaderMap) error {
	if err := c.mutable("setRequestHeaders"); err != nil {
		return err
	}
	c.req.Header.Merge(h)
	return nil
}

func (c *Connection) DelRequestHeader(k string) error {
	if err := c.mutable("delRequestHeader"); err != nil {
		return err
	}
	c.req.Header.Del(k)
	return nil
}

// SetRequestBody sets the body sent by Write. Strings, byte slices,
// buffers and readers are sent as is; url.Values and string maps are
// form encoded and get a content-type. An empty body is ignored.
func (c *Connection) SetRequestBody(body interface{}) error {
	if err := c.mutable("setRequestBody"); err != nil {
		return err
	}
	data, contentType, err := model.EncodeBody(body)
	if err != nil {
		return errors.ErrInvalid.At("setRequestBody", c.addr()).Wrap(err)
	}
	if len(data) > 0 {
		c.setBody(data, contentType)
	}
	return nil
}

func (c *Connection) setBody(data []byte, contentType string) {
	if contentType != "" {
		c.req.Header.SetDefault("content-type", contentType)
	}
	c.req.Header.Set("content-length", strconv.Itoa(len(data)))
	c.req.Body = data
}

// Code is the numeric status, or 0 when the status token was not a
// clean integer (see RawCode).
func (c *Connection) Code() int { return c.resp.Code }
func (c *Connection) RawCode() string { return c.resp.RawCode }
func (c *Connection) Message() string { return c.resp.Message }
func (c *Connection) Proto() string { return c.resp.Proto }
func (c *Connection) Body() []byte { return c.resp.Body }
func (c *Connection) State() model.State { return c.state }
func (c *Connection) Err() error { return c.err }

// Headers returns the response headers, trailers included. It is nil
// before the head was read.
func (c *Connection) Headers() *model.HeaderMap {
	return c.resp.Header
}

func (c *Connection) Host() string { return c.host }
func (c *Connection) Port() int { return c.port }
func (c *Connection) Scheme() string { return c.scheme }

// URL renders the current request target as an absolute URL, naming
// the Host option instead of the dialed address when it is set.
func (c *Connection) URL() string {
	u, err := c.base()
	if err != nil {
		return c.scheme + "://" + c.addr() + c.req.Path
	}
	return u.String()
}

func (c *Connection) Method() string { return c.req.EffectiveMethod() }
func (c *Connection) Path() string { return c.req.Path }
func (c *Connection) Protocol() string { return c.req.EffectiveProtocol() }

// RequestHeaders returns the request fields. Once the head is written
// they are exactly the fields that were sent.
func (c *Connection) RequestHeaders() *model.HeaderMap {
	return c.req.Header.Clone()
}

func (c *Connection) RequestBody() []byte {
	return c.req.Body
}

// Cookies returns the cookies received so far, expired ones included.
func (c *Connection) Cookies() []*cookie.Cookie {
	return c.jar.Cookies()
}

// Redirect is the next hop created by FollowRedirect, if any.
func (c *Connection) Redirect() *Connection {
	return c.redirect
}

func (c *Connection) Timings() Timings {
	return c.timings.clone()
}
