package internal_test

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// step is one scripted reply of a testServer.
type step struct {
	response string
	hangup   bool // close the connection after writing response
	silent   bool // read the request but never answer
}

// testServer answers requests with scripted steps, in order, across
// all accepted connections. Every request it reads is forwarded to
// requests verbatim.
type testServer struct {
	ln       net.Listener
	mu       sync.Mutex
	steps    []step
	requests chan string
}

func serve(t *testing.T, steps ...step) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &testServer{ln: ln, steps: steps, requests: make(chan string, 16)}
	t.Cleanup(func() { ln.Close() })
	go s.accept()
	return s
}

func (s *testServer) accept() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(c)
	}
}

func (s *testServer) next() (step, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return step{}, false
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st, true
}

func (s *testServer) handle(c net.Conn) {
	defer c.Close()
	br := bufio.NewReader(c)
	for {
		req, err := readRequest(br)
		if err != nil {
			return
		}
		s.requests <- req
		st, ok := s.next()
		if !ok {
			return
		}
		if st.silent {
			io.Copy(io.Discard, br)
			return
		}
		io.WriteString(c, st.response)
		if st.hangup {
			return
		}
	}
}

func readRequest(br *bufio.Reader) (string, error) {
	var sb strings.Builder
	n := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return "", err
		}
		sb.WriteString(line)
		if line == "\r\n" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(strings.TrimSpace(k), "content-length") {
			n, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return "", err
	}
	sb.Write(body)
	return sb.String(), nil
}

func (s *testServer) url(path string) string {
	return "http://" + s.ln.Addr().String() + path
}

func (s *testServer) hostHeader() string {
	return s.ln.Addr().String()
}

// request returns the next request the server received.
func (s *testServer) request(t *testing.T) string {
	t.Helper()
	select {
	case r := <-s.requests:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("no request received")
		return ""
	}
}
