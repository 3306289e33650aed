package transport

import (
	"io"
	"net"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Write puts p on the wire in one go. A short write without an error
// is reported as io.ErrShortWrite.
func Write(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return err
}

// ASCIIHost converts an internationalized host, optionally carrying a
// port, into its punycode form. ASCII input is returned untouched.
func ASCIIHost(hostport string) (string, error) {
	if isASCII(hostport) {
		return hostport, nil
	}
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = hostport, ""
	}
	if !utf8.ValidString(host) {
		return "", &net.AddrError{Err: "invalid utf-8 in host", Addr: hostport}
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	if port == "" {
		return ascii, nil
	}
	return net.JoinHostPort(ascii, port), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
