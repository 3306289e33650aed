package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/frankli0324/go-httpsock/internal/model"
	"github.com/frankli0324/go-httpsock/internal/transport/chunked"
)

// ErrEmptyResponse is returned by ReadHead when the stream ends before
// a single byte of the response was received.
var ErrEmptyResponse = errors.New("empty response")

// HeadConfig carries the connection level inputs of BuildHead.
type HeadConfig struct {
	Host         string // host the connection targets
	HostOverride string // takes priority over Host for the host header
	UserAgent    string
	KeepAlive    bool
	AcceptGzip   bool
}

// BuildHead computes the header set actually sent for req and the
// serialized request head, e.g.:
//
//	GET / HTTP/1.1\r\n
//	Host: www.google.com\r\n
//	X-Xx-Yy: cccccc\r\n
//	\r\n
//
// Defaults are only applied to fields absent from req.Header.
func BuildHead(req *model.Request, cfg HeadConfig) (*model.HeaderMap, []byte, error) {
	h := model.NewHeaderMap()
	if !req.Header.Has("host") {
		host := cfg.HostOverride
		if host == "" {
			host = cfg.Host
		}
		h.Set("host", host)
	}
	h.Merge(req.Header)
	h.SetDefault("accept", "*/*")
	if cfg.UserAgent != "" {
		h.SetDefault("user-agent", cfg.UserAgent)
	}
	if cfg.AcceptGzip {
		h.SetDefault("accept-encoding", "gzip")
	}
	if len(req.Body) > 0 {
		h.SetDefault("content-length", strconv.Itoa(len(req.Body)))
	}
	if cfg.KeepAlive {
		h.SetDefault("connection", "keep-alive")
	} else {
		h.SetDefault("connection", "close")
	}

	method, path := req.EffectiveMethod(), req.Path
	if path == "" {
		path = "/"
	}
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, nil, fmt.Errorf("invalid method %q", method)
	}
	if strings.ContainsAny(path, " \r\n") {
		return nil, nil, fmt.Errorf("invalid request target %q", path)
	}
	if host := h.Get("host"); !httpguts.ValidHostHeader(host) {
		return nil, nil, fmt.Errorf("invalid host header %q", host)
	}

	var head bytes.Buffer
	head.WriteString(method)
	head.WriteByte(' ')
	head.WriteString(path)
	head.WriteByte(' ')
	head.WriteString(req.EffectiveProtocol())
	head.WriteString("\r\n")
	var err error
	h.Each(func(k string, v []string) {
		if err != nil {
			return
		}
		if !httpguts.ValidHeaderFieldName(k) {
			err = fmt.Errorf("invalid header field name %q", k)
			return
		}
		for _, v := range v {
			if !httpguts.ValidHeaderFieldValue(v) {
				err = fmt.Errorf("invalid header field value for %q", k)
				return
			}
			head.WriteString(model.TitleKey(k))
			head.WriteString(": ")
			head.WriteString(v)
			head.WriteString("\r\n")
		}
	})
	if err != nil {
		return nil, nil, err
	}
	head.WriteString("\r\n")
	return h, head.Bytes(), nil
}

// ReadHead parses a status line and header block from br into resp.
// eof reports that the stream ended before the terminating blank line;
// whatever was received is still parsed in that case.
func ReadHead(br *bufio.Reader, resp *model.Response) (eof bool, err error) {
	tp := textproto.NewReader(br)

	var lines []string
	for {
		line, err := tp.ReadLine()
		if err != nil {
			if err != io.EOF {
				return false, err
			}
			eof = true
			break
		}
		if line == "" {
			if len(lines) == 0 {
				continue // tolerate stray CRLF before the status line
			}
			break
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return eof, ErrEmptyResponse
	}

	status := strings.SplitN(lines[0], " ", 3)
	resp.Proto = status[0]
	if len(status) > 1 {
		resp.RawCode = status[1]
		if n, err := strconv.Atoi(status[1]); err == nil && strconv.Itoa(n) == status[1] {
			resp.Code = n
		}
	}
	if len(status) > 2 {
		resp.Message = status[2]
	}

	resp.Header = model.NewHeaderMap()
	for _, line := range lines[1:] {
		mergeHeaderLine(resp.Header, line)
	}
	return eof, nil
}

func mergeHeaderLine(h *model.HeaderMap, line string) {
	k, v, ok := strings.Cut(line, ":")
	k = model.CanonicalKey(k)
	if k == "" {
		return
	}
	if ok {
		h.Add(k, strings.TrimSpace(v))
	} else if !h.Has(k) {
		h.Add(k, "")
	}
}

// Strategy is the framing used to delimit a response body.
type Strategy int

const (
	NoBody Strategy = iota
	Chunked
	FixedLength
	UntilEOF
)

func (s Strategy) String() string {
	switch s {
	case NoBody:
		return "none"
	case Chunked:
		return "chunked"
	case FixedLength:
		return "fixed-length"
	default:
		return "until-eof"
	}
}

// SelectStrategy picks the body framing for a response to a request
// made with method. The returned length is only meaningful for
// FixedLength.
func SelectStrategy(method string, resp *model.Response) (Strategy, int64, error) {
	numeric := resp.RawCode != "" && strconv.Itoa(resp.Code) == resp.RawCode
	if method == "HEAD" || (numeric && (resp.Code < 200 || resp.Code == 204 || resp.Code == 304)) {
		return NoBody, 0, nil
	}
	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("transfer-encoding")), "chunked") {
		return Chunked, -1, nil
	}
	contentLens := resp.Header.Values("content-length")
	if len(contentLens) == 0 {
		return UntilEOF, -1, nil
	}
	// Hardening against HTTP response smuggling, taken from standard library
	first := textproto.TrimString(contentLens[0])
	for _, cl := range contentLens[1:] {
		if first != textproto.TrimString(cl) {
			return 0, 0, fmt.Errorf("message cannot contain multiple Content-Length headers; got %q", contentLens)
		}
	}
	n, err := strconv.ParseUint(first, 10, 63)
	if err != nil {
		return UntilEOF, -1, nil
	}
	return FixedLength, int64(n), nil
}

// Body is a fully decoded response body.
type Body struct {
	Data       []byte // nil only for NoBody
	Trailer    *model.HeaderMap
	TrailerErr error
	Short      bool // the stream ended before the framing was satisfied
	EOF        bool // the stream is exhausted and cannot carry another response
}

// ErrMalformedBody wraps chunk framing errors.
type ErrMalformedBody struct {
	error
}

func (e ErrMalformedBody) Unwrap() error { return e.error }

// ReadBody reads a body framed by s from br. Hitting EOF early is not
// an error: the bytes received so far are returned with Short set.
func ReadBody(br *bufio.Reader, s Strategy, length int64) (*Body, error) {
	b := &Body{}
	switch s {
	case NoBody:
		return b, nil
	case FixedLength:
		var buf bytes.Buffer
		if length < 64<<10 {
			buf.Grow(int(length))
		}
		n, err := io.CopyN(&buf, br, length)
		b.Data = buf.Bytes()
		if err != nil {
			if err != io.EOF {
				return b, err
			}
			b.Short, b.EOF = n < length, true
		}
	case Chunked:
		cr := chunked.NewChunkedReader(br)
		data, err := io.ReadAll(cr)
		b.Data = data
		switch {
		case err == nil:
			b.Trailer, b.TrailerErr = cr.Trailer(), cr.TrailerErr()
		case err == io.ErrUnexpectedEOF:
			b.Short, b.EOF = true, true
		case errors.Is(err, chunked.ErrMalformed), errors.Is(err, chunked.ErrChunkLength), errors.Is(err, chunked.ErrChunkTooBig):
			return b, ErrMalformedBody{err}
		default:
			return b, err
		}
	default:
		data, err := io.ReadAll(br)
		b.Data = data
		b.EOF = true
		if err != nil {
			return b, err
		}
	}
	if b.Data == nil {
		b.Data = []byte{}
	}
	return b, nil
}
