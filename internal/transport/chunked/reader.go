package chunked

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/frankli0324/go-httpsock/internal/model"
)

var (
	ErrMalformed   = errors.New("malformed chunked encoding")
	ErrChunkLength = errors.New("invalid byte in chunk length")
	ErrChunkTooBig = errors.New("http chunk length too large")
)

// maxLineLength bounds chunk size and trailer lines.
const maxLineLength = 4096

// NewChunkedReader decodes a chunked body from r. It returns io.EOF
// after the zero sized chunk and the trailer section have been
// consumed, and io.ErrUnexpectedEOF when the stream ends earlier.
func NewChunkedReader(r io.Reader) *Reader {
	var br *bufio.Reader
	if v, ok := r.(*bufio.Reader); ok {
		br = v
	} else {
		br = bufio.NewReader(r)
	}
	return &Reader{br: br}
}

type Reader struct {
	br                             *bufio.Reader
	currentChunk                   io.Reader
	currentCount, currentChunkSize int64

	done       bool
	trailer    *model.HeaderMap
	trailerErr error
}

// Trailer returns the trailer fields received after the last chunk.
// It is only complete once Read has returned io.EOF.
func (c *Reader) Trailer() *model.HeaderMap {
	return c.trailer
}

// TrailerErr reports the first trailer line that could not be parsed.
// Trailer problems never fail the body itself.
func (c *Reader) TrailerErr() error {
	return c.trailerErr
}

func (c *Reader) readLine() (string, error) {
	var line []byte
	for {
		l, isPrefix, err := c.br.ReadLine()
		if err != nil {
			return "", err
		}
		line = append(line, l...)
		if len(line) > maxLineLength {
			return "", ErrMalformed
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

func (c *Reader) readChunkHeader() (n uint64, err error) {
	line, err := c.readLine()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i] // chunk extensions are ignored
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrChunkLength
	}
	if len(line) > 16 {
		return 0, ErrChunkTooBig
	}
	for i := 0; i < len(line); i++ {
		b := line[i]
		switch {
		case '0' <= b && b <= '9':
			b = b - '0'
		case 'a' <= b && b <= 'f':
			b = b - 'a' + 10
		case 'A' <= b && b <= 'F':
			b = b - 'A' + 10
		default:
			return 0, ErrChunkLength
		}
		n <<= 4
		n |= uint64(b)
	}
	if n > 1<<62 {
		return 0, ErrChunkTooBig
	}
	return n, nil
}

// readTrailer consumes trailer lines up to the terminating blank line.
func (c *Reader) readTrailer() {
	c.trailer = model.NewHeaderMap()
	for {
		line, err := c.readLine()
		if err != nil {
			if err != io.EOF && c.trailerErr == nil {
				c.trailerErr = err
			}
			return
		}
		if line == "" {
			return
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(k) == "" {
			if c.trailerErr == nil {
				c.trailerErr = errors.New("malformed trailer line: " + line)
			}
			continue
		}
		c.trailer.Add(k, strings.TrimSpace(v))
	}
}

func (c *Reader) Read(p []byte) (n int, err error) {
	if c.done {
		return 0, io.EOF
	}
	if c.currentChunk == nil {
		l, err := c.readChunkHeader()
		if err != nil {
			return 0, err
		}
		if l == 0 {
			c.readTrailer()
			c.done = true
			return 0, io.EOF
		}
		c.currentChunk = io.LimitReader(c.br, int64(l))
		c.currentChunkSize = int64(l)
	}
	n, err = c.currentChunk.Read(p)
	c.currentCount += int64(n)
	if err == io.EOF || (err == nil && c.currentCount == c.currentChunkSize) {
		if c.currentCount != c.currentChunkSize {
			return n, io.ErrUnexpectedEOF
		}
		err = nil
		dr, _ := c.br.ReadByte()
		dn, rerr := c.br.ReadByte()
		if rerr != nil {
			if rerr == io.EOF {
				rerr = io.ErrUnexpectedEOF
			}
			return n, rerr
		}
		if dr != '\r' || dn != '\n' {
			return n, ErrMalformed
		}
		c.currentChunk = nil
		c.currentCount = 0
	}
	return
}
