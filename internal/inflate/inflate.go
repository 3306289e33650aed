// Package inflate decodes gzip encoded response bodies.
package inflate

import (
	"bytes"
	"compress/gzip"
	"io"
)

// Inflater turns a complete gzip member into its uncompressed bytes.
type Inflater interface {
	Inflate(data []byte) ([]byte, error)
}

// System inflates with compress/gzip, accepting concatenated members.
type System struct{}

func (System) Inflate(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Detect returns System when it can round-trip a probe stream, otherwise
// an Envelope decoder in strict mode. It probes on every call; callers
// resolve it once and inject the result. Inject an Envelope directly to
// always parse the gzip framing by hand.
func Detect() Inflater {
	return probe()
}

var probePayload = []byte("httpsock inflate probe")

func probe() Inflater {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(probePayload); err != nil {
		return &Envelope{}
	}
	if err := zw.Close(); err != nil {
		return &Envelope{}
	}
	out, err := System{}.Inflate(buf.Bytes())
	if err != nil || !bytes.Equal(out, probePayload) {
		return &Envelope{}
	}
	return System{}
}
