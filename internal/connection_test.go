package internal_test

import (
	"bytes"
	"compress/gzip"
	stderrors "errors"
	"net"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/frankli0324/go-httpsock/internal"
	"github.com/frankli0324/go-httpsock/internal/errors"
	"github.com/frankli0324/go-httpsock/internal/inflate"
	"github.com/frankli0324/go-httpsock/internal/model"
	"github.com/frankli0324/go-httpsock/internal/redirect"
)

func dial(t *testing.T, rawURL string, opts *internal.Options) *internal.Connection {
	t.Helper()
	c, err := internal.New(rawURL, opts)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(false) })
	return c
}

func TestKeepAliveHello(t *testing.T) {
	srv := serve(t,
		step{response: "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nConnection: keep-alive\r\n\r\nhello"},
		step{response: "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"},
	)
	c := dial(t, srv.url("/"), &internal.Options{Close: internal.Bool(false)})

	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
	require.Equal(t, 200, c.Code())
	require.Equal(t, "OK", c.Message())
	require.Equal(t, "keep-alive", c.Headers().Get("connection"))
	require.False(t, c.Close(true), "keep-alive socket must stay open")
	require.Equal(t, model.StateBodyRead, c.State())

	require.Equal(t, "GET / HTTP/1.1\r\n"+
		"Host: "+srv.hostHeader()+"\r\n"+
		"Accept: */*\r\n"+
		"User-Agent: "+internal.DefaultUserAgent+"\r\n"+
		"Connection: keep-alive\r\n\r\n", srv.request(t))

	require.True(t, c.Reuse(true))
	require.Equal(t, model.StateOpen, c.State())
	require.Nil(t, c.Headers())
	require.NoError(t, c.SetPath("again"))

	body, err = c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.True(t, strings.HasPrefix(srv.request(t), "GET /again HTTP/1.1\r\n"))
	require.Contains(t, c.Timings().Phase, "readBody")
}

func TestChunkedWikipedia(t *testing.T) {
	srv := serve(t, step{
		response: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n" +
			"4\r\nWiki\r\n5\r\npedia\r\n0\r\nX-Trailer: t\r\n\r\n",
		hangup: true,
	})
	c := dial(t, srv.url("/wiki"), nil)

	final, err := c.Read()
	require.NoError(t, err)
	require.Same(t, c, final)
	require.Equal(t, "Wikipedia", string(final.Body()))
	require.Equal(t, "t", final.Headers().Get("x-trailer"))
}

func TestMalformedTrailerIsLogged(t *testing.T) {
	srv := serve(t, step{
		response: "HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n0\r\nnot a field\r\n\r\n",
		hangup:   true,
	})
	core, logs := observer.New(zap.WarnLevel)
	c := dial(t, srv.url("/"), &internal.Options{Logger: zap.New(core)})

	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "Wiki", string(body))
	require.Equal(t, 1, logs.FilterMessage("malformed trailer skipped").Len())
}

func TestRedirectPostBecomesGet(t *testing.T) {
	srv := serve(t,
		step{
			response: "HTTP/1.1 302 Found\r\nLocation: /elsewhere\r\nLocation: /new\r\n" +
				"Set-Cookie: sid=1; Path=/\r\n" +
				"Set-Cookie: old=2; Expires=Wed, 09 Jun 2021 10:18:14 GMT\r\n" +
				"Content-Length: 0\r\n\r\n",
			hangup: true,
		},
		step{response: "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\ndone", hangup: true},
	)
	c := dial(t, srv.url("/old"), &internal.Options{Redirects: 1, UseCookies: true})
	require.NoError(t, c.SetRequestBody("a=1"))
	require.NoError(t, c.SetRequestHeader("cookie", "pref=x"))

	final, err := c.Read()
	require.NoError(t, err)
	require.Same(t, final, c.Redirect())
	require.Equal(t, model.StateBodyRead, c.State())
	require.Len(t, c.Cookies(), 2)

	require.Equal(t, "done", string(final.Body()))
	require.Equal(t, "GET", final.Method())
	require.Equal(t, "/new", final.Path())
	require.Equal(t, c.Host(), final.Host())
	require.Equal(t, c.Port(), final.Port())
	require.Nil(t, final.RequestBody())
	require.Len(t, final.Cookies(), 1)

	first := srv.request(t)
	require.True(t, strings.HasPrefix(first, "POST /old HTTP/1.1\r\n"))
	require.True(t, strings.HasSuffix(first, "\r\n\r\na=1"))

	second := srv.request(t)
	require.True(t, strings.HasPrefix(second, "GET /new HTTP/1.1\r\nHost: "+srv.hostHeader()+"\r\n"), second)
	require.Contains(t, second, "\r\nCookie: pref=x; sid=1\r\n")
	require.NotContains(t, second, "old=2")
	require.NotContains(t, second, "Content-Length")
}

func TestRedirectPolicyEndToEnd(t *testing.T) {
	cases := map[string]struct {
		status string
		opts   internal.Options
		want   string
	}{
		"307KeepsPost":      {"307 Temporary Redirect", internal.Options{Redirects: 1}, "POST /new HTTP/1.1\r\n"},
		"ForcedGet":         {"307 Temporary Redirect", internal.Options{Redirects: 1, RedirectMethod: "get"}, "GET /new HTTP/1.1\r\n"},
		"AlwaysPreserve301": {"301 Moved Permanently", internal.Options{Redirects: 1, RedirectPreserve: redirect.PreserveAlways}, "POST /new HTTP/1.1\r\n"},
	}
	for name, cas := range cases {
		cas := cas
		t.Run(name, func(t *testing.T) {
			srv := serve(t,
				step{response: "HTTP/1.1 " + cas.status + "\r\nLocation: /new\r\nContent-Length: 0\r\n\r\n", hangup: true},
				step{response: "HTTP/1.1 204 No Content\r\n\r\n", hangup: true},
			)
			c := dial(t, srv.url("/old"), &cas.opts)
			require.NoError(t, c.SetRequestBody("a=1"))
			final, err := c.Read()
			require.NoError(t, err)
			require.Nil(t, final.Body())

			srv.request(t)
			second := srv.request(t)
			require.True(t, strings.HasPrefix(second, cas.want), second)
			require.Equal(t, strings.HasPrefix(cas.want, "POST"), strings.HasSuffix(second, "a=1"))
		})
	}
}

func TestRedirectKeepsVirtualHost(t *testing.T) {
	cases := map[string]struct {
		location func(srv *testServer) string
		virtual  bool
	}{
		"Relative": {func(*testServer) string { return "/new" }, true},
		"AbsoluteVirtual": {func(srv *testServer) string {
			return "http://vhost.example:" + strconv.Itoa(srv.ln.Addr().(*net.TCPAddr).Port) + "/new"
		}, true},
		"Elsewhere": {func(srv *testServer) string { return srv.url("/new") }, false},
	}
	for name, cas := range cases {
		cas := cas
		t.Run(name, func(t *testing.T) {
			srv := serve(t)
			srv.mu.Lock()
			srv.steps = []step{
				{response: "HTTP/1.1 302 Found\r\nLocation: " + cas.location(srv) + "\r\nContent-Length: 0\r\n\r\n", hangup: true},
				{response: "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok", hangup: true},
			}
			srv.mu.Unlock()
			c := dial(t, srv.url("/old"), &internal.Options{Host: "vhost.example", Redirects: 1})
			port := strconv.Itoa(c.Port())
			require.Equal(t, "http://vhost.example:"+port+"/old", c.URL())

			final, err := c.Read()
			require.NoError(t, err)
			require.Equal(t, "ok", string(final.Body()))
			require.Equal(t, "127.0.0.1", final.Host())
			require.Contains(t, srv.request(t), "\r\nHost: vhost.example\r\n")

			second := srv.request(t)
			require.True(t, strings.HasPrefix(second, "GET /new HTTP/1.1\r\n"), second)
			if cas.virtual {
				require.Contains(t, second, "\r\nHost: vhost.example\r\n")
				require.Equal(t, "http://vhost.example:"+port+"/new", final.URL())
			} else {
				require.Contains(t, second, "\r\nHost: "+srv.hostHeader()+"\r\n")
				require.Equal(t, srv.url("/new"), final.URL())
			}
		})
	}
}

func TestHostOptionWithPort(t *testing.T) {
	srv := serve(t, step{response: "HTTP/1.1 204 No Content\r\n\r\n", hangup: true})
	c := dial(t, srv.url("/"), &internal.Options{Host: "vhost.example:8443"})
	require.Equal(t, "http://vhost.example:8443/", c.URL())

	_, err := c.ReadBody()
	require.NoError(t, err)
	require.Contains(t, srv.request(t), "\r\nHost: vhost.example:8443\r\n")
}

func TestRedirectBudget(t *testing.T) {
	srv := serve(t, step{response: "HTTP/1.1 302 Found\r\nLocation: /new\r\nContent-Length: 3\r\n\r\nbye", hangup: true})
	c := dial(t, srv.url("/"), nil)

	next, err := c.FollowRedirect()
	require.NoError(t, err)
	require.Nil(t, next)
	require.Equal(t, model.StateRedirected, c.State())

	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "bye", string(body))
	require.Equal(t, 302, c.Code())
}

func TestReusePreconditions(t *testing.T) {
	c := dial(t, "127.0.0.1:1/", nil)
	require.False(t, c.Reuse(false))
	require.Equal(t, model.StateCreated, c.State())

	srv := serve(t, step{response: "HTTP/1.1 200 OK\r\nContent-Length: 1\r\nConnection: close\r\n\r\nx", hangup: true})
	c = dial(t, srv.url("/"), &internal.Options{Close: internal.Bool(false)})
	_, err := c.ReadBody()
	require.NoError(t, err)
	require.False(t, c.Reuse(false), "server asked to close")
	require.Equal(t, model.StateBodyRead, c.State())

	srv = serve(t, step{response: "HTTP/1.1 200 OK\r\n\r\nuntil eof", hangup: true})
	c = dial(t, srv.url("/"), &internal.Options{Close: internal.Bool(false)})
	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "until eof", string(body))
	require.False(t, c.Reuse(false), "stream already ended")

	if runtime.GOOS == "linux" || runtime.GOOS == "darwin" {
		srv = serve(t, step{response: "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nx", hangup: true})
		c = dial(t, srv.url("/"), &internal.Options{Close: internal.Bool(false)})
		_, err = c.ReadBody()
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond)
		require.False(t, c.Reuse(false), "peer hung up while idle")
		require.Equal(t, model.StateBodyRead, c.State())
	}
}

func TestImplicitReuseOnWrite(t *testing.T) {
	srv := serve(t,
		step{response: "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nfirst"},
		step{response: "HTTP/1.1 201 Created\r\nContent-Length: 6\r\n\r\nsecond"},
	)
	c := dial(t, srv.url("/"), &internal.Options{Close: internal.Bool(false)})
	require.NoError(t, c.SetRequestHeader("x-once", "1"))
	_, err := c.ReadBody()
	require.NoError(t, err)
	require.Contains(t, srv.request(t), "X-Once: 1\r\n")

	require.NoError(t, c.Write(map[string]string{"k": "v"}, nil))
	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "second", string(body))
	require.Equal(t, 201, c.Code())

	second := srv.request(t)
	require.True(t, strings.HasPrefix(second, "POST / HTTP/1.1\r\n"))
	require.Contains(t, second, "Content-Type: application/x-www-form-urlencoded\r\n")
	require.Contains(t, second, "Content-Length: 3\r\n")
	require.NotContains(t, second, "X-Once")
	require.True(t, strings.HasSuffix(second, "\r\n\r\nk=v"))
}

func TestStateMisuse(t *testing.T) {
	srv := serve(t, step{response: "HTTP/1.1 200 OK\r\nContent-Length: 0\r\n\r\n", hangup: true})
	c := dial(t, srv.url("/"), nil)
	_, err := c.ReadBody()
	require.NoError(t, err)

	require.ErrorIs(t, c.SetPath("/x"), errors.ErrState)
	require.ErrorIs(t, c.Write("late", nil), errors.ErrState)
	h := model.NewHeaderMap()
	h.Set("x-late", "1")
	require.ErrorIs(t, c.WriteHead(h), errors.ErrState)
	require.Equal(t, model.StateBodyRead, c.State())
	require.NoError(t, c.Err())

	require.NoError(t, c.WriteHead(nil), "advancing again is a no-op")
	body, err := c.ReadBody()
	require.NoError(t, err)
	require.NotNil(t, body)
	require.Empty(t, body)
}

func TestEmptyResponse(t *testing.T) {
	srv := serve(t, step{hangup: true})
	c := dial(t, srv.url("/"), nil)

	_, err := c.ReadHead()
	require.ErrorIs(t, err, errors.ErrEmptyResponse)
	require.Equal(t, model.StateError, c.State())

	_, err2 := c.ReadBody()
	require.Same(t, c.Err(), err2)
	require.False(t, c.Close(false))
}

func TestConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	c := dial(t, "http://"+addr+"/", nil)
	_, err = c.ReadBody()
	require.ErrorIs(t, err, errors.ErrConnect)
	require.Equal(t, model.StateError, c.State())
	kind, ok := errors.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errors.ConnectFailure, kind)
}

func TestReadTimeout(t *testing.T) {
	srv := serve(t, step{silent: true})
	c := dial(t, srv.url("/"), &internal.Options{Timeout: 100 * time.Millisecond})

	_, err := c.ReadHead()
	require.ErrorIs(t, err, errors.ErrRead)
	var ne net.Error
	require.True(t, stderrors.As(err, &ne))
	require.True(t, ne.Timeout())
	require.Equal(t, model.StateError, c.State())
}

func TestInvalidHeaderSendsNothing(t *testing.T) {
	srv := serve(t)
	c := dial(t, srv.url("/"), nil)
	require.NoError(t, c.SetRequestHeader("x-a", "1\r\nInjected: yes"))

	err := c.WriteHead(nil)
	require.ErrorIs(t, err, errors.ErrInvalidHeader)
	require.Equal(t, model.StateCreated, c.State())
	require.NoError(t, c.Err())
}

func gzipped(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.String()
}

func TestGzipDecode(t *testing.T) {
	payload := gzipped(t, "compressed hello")
	srv := serve(t, step{
		response: "HTTP/1.1 200 OK\r\nContent-Encoding: GZIP\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + payload,
		hangup:   true,
	})
	c := dial(t, srv.url("/"), &internal.Options{Decode: "gzip", Inflater: &inflate.Envelope{}})

	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "compressed hello", string(body))
	require.False(t, c.Headers().Has("content-encoding"))
	require.Contains(t, srv.request(t), "Accept-Encoding: gzip\r\n")
}

func TestGzipDecodeDefaultInflater(t *testing.T) {
	payload := gzipped(t, "probed")
	srv := serve(t, step{
		response: "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + payload,
		hangup:   true,
	})
	c := dial(t, srv.url("/"), &internal.Options{Decode: "gzip"})

	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Equal(t, "probed", string(body))
}

func TestGzipDecodeFailure(t *testing.T) {
	payload := []byte(gzipped(t, "compressed hello"))
	payload[len(payload)-8] ^= 0xff
	srv := serve(t, step{
		response: "HTTP/1.1 200 OK\r\nContent-Encoding: gzip\r\nContent-Length: " + strconv.Itoa(len(payload)) + "\r\n\r\n" + string(payload),
		hangup:   true,
	})
	c := dial(t, srv.url("/"), &internal.Options{Decode: "gzip", Inflater: &inflate.Envelope{}})

	_, err := c.ReadBody()
	require.ErrorIs(t, err, errors.ErrDecode)
	require.ErrorIs(t, err, inflate.ErrChecksum)
	require.Equal(t, model.StateError, c.State())
}

func TestHeadHasNoBody(t *testing.T) {
	srv := serve(t,
		step{response: "HTTP/1.1 200 OK\r\nContent-Length: 10\r\n\r\n"},
		step{response: "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nabc"},
	)
	c := dial(t, srv.url("/"), &internal.Options{Method: "head", Close: internal.Bool(false)})
	body, err := c.ReadBody()
	require.NoError(t, err)
	require.Nil(t, body)
	require.True(t, strings.HasPrefix(srv.request(t), "HEAD / HTTP/1.1\r\n"))
	require.True(t, c.Reuse(false), "nothing was left unread on the socket")
}

func TestTargets(t *testing.T) {
	cases := map[string]struct {
		raw    string
		opts   *internal.Options
		scheme string
		host   string
		port   int
		path   string
		url    string
	}{
		"Shorthand":     {"example.com:8080/a?b=1", nil, "http", "example.com", 8080, "/a?b=1", "http://example.com:8080/a?b=1"},
		"BareHost":      {"example.com", nil, "http", "example.com", 80, "/", "http://example.com/"},
		"HTTPS":         {"https://example.com", nil, "https", "example.com", 443, "/", "https://example.com/"},
		"FTP":           {"ftp://files.example/pub", nil, "ftp", "files.example", 21, "/pub", "ftp://files.example/pub"},
		"PortOption":    {"http://example.com:81/", &internal.Options{Port: 82}, "http", "example.com", 82, "/", "http://example.com:82/"},
		"SchemeOption":  {"example.com/x", &internal.Options{Scheme: "TLS"}, "tls", "example.com", 443, "/x", "tls://example.com/x"},
		"IPv6Shorthand": {"[::1]:8080/v6", nil, "http", "::1", 8080, "/v6", "http://[::1]:8080/v6"},
	}
	for name, cas := range cases {
		c, err := internal.New(cas.raw, cas.opts)
		require.NoError(t, err, name)
		require.Equal(t, cas.scheme, c.Scheme(), name)
		require.Equal(t, cas.host, c.Host(), name)
		require.Equal(t, cas.port, c.Port(), name)
		require.Equal(t, cas.path, c.Path(), name)
		require.Equal(t, cas.url, c.URL(), name)
		require.Equal(t, model.StateCreated, c.State(), name)
	}

	_, err := internal.New("", nil)
	require.ErrorIs(t, err, errors.ErrInvalid)
	_, err = internal.New("example.com:99999", nil)
	require.ErrorIs(t, err, errors.ErrInvalid)
	_, err = internal.New("example.com", &internal.Options{Decode: "br"})
	require.ErrorIs(t, err, errors.ErrInvalid)
}

func TestDerive(t *testing.T) {
	c, err := internal.New("example.com/a", &internal.Options{Method: "PUT"})
	require.NoError(t, err)
	require.NoError(t, c.SetRequestHeader("x-a", "1"))
	require.NoError(t, c.SetRequestBody([]byte("payload")))

	d := c.Derive()
	require.Equal(t, model.StateCreated, d.State())
	require.Equal(t, c.RequestHeaders().Map(), d.RequestHeaders().Map())
	require.Equal(t, "payload", string(d.RequestBody()))
	require.Equal(t, "PUT", d.Method())
	require.Equal(t, c.URL(), d.URL())
	require.Nil(t, d.Headers())

	require.NoError(t, d.SetRequestHeader("x-a", "2"))
	require.Equal(t, "1", c.RequestHeaders().Get("x-a"))
}

func TestRequestDefaults(t *testing.T) {
	c, err := internal.New("example.com", nil)
	require.NoError(t, err)
	require.Equal(t, "GET", c.Method())
	require.Equal(t, "HTTP/1.1", c.Protocol())
	require.Equal(t, []string{"accept", "user-agent"}, c.RequestHeaders().Keys())

	require.NoError(t, c.SetRequestHeaders(model.ParseHeaderLines("X-Raw: 1\r\nAccept: text/html")))
	require.NoError(t, c.DelRequestHeader("user_agent"))
	require.Equal(t, []string{"accept", "x-raw"}, c.RequestHeaders().Keys())
	require.Equal(t, "text/html", c.RequestHeaders().Get("accept"))

	require.NoError(t, c.SetRequestBody(""))
	require.Nil(t, c.RequestBody())
	require.ErrorIs(t, c.SetRequestBody(3.14), errors.ErrInvalid)
}
