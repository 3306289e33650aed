// Package redirect decides whether and how a response is followed.
package redirect

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/frankli0324/go-httpsock/internal/model"
)

// Preserve selects whether method and body survive a redirect.
type Preserve int

const (
	// PreserveByStatus keeps them for 307/308 and drops them for
	// 301/302/303.
	PreserveByStatus Preserve = iota
	PreserveAlways
	PreserveNever
)

func (p Preserve) String() string {
	switch p {
	case PreserveAlways:
		return "always"
	case PreserveNever:
		return "never"
	default:
		return "by-status"
	}
}

type Policy struct {
	Budget int // remaining redirects, nothing is followed at 0
	// Method forces the method of the next hop. The body is only kept
	// for POST, PUT and DELETE. It takes priority over Preserve.
	Method   string
	Preserve Preserve
}

// Plan describes the next hop of a redirect chain.
type Plan struct {
	URL      *url.URL
	Method   string // method override for the next hop; "" derives it from the body
	KeepBody bool
	Budget   int
}

// IsRedirect reports whether code is one of the followed statuses.
func IsRedirect(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// Base is the URL a relative Location is resolved against. The port is
// left out when it is the scheme's default.
func Base(scheme, host string, port int, path string) (*url.URL, error) {
	if scheme == "" {
		scheme = "http"
	}
	if port != 0 && port != model.DefaultPort(scheme) {
		host = net.JoinHostPort(host, strconv.Itoa(port))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return url.Parse(scheme + "://" + host + path)
}

// Resolve computes the next hop for a response with code and the given
// Location values. method is the current explicit method override, kept
// when the method is preserved. A nil Plan means nothing is followed.
func Resolve(code int, locations []string, base *url.URL, method string, p Policy) (*Plan, error) {
	if !IsRedirect(code) || p.Budget <= 0 || len(locations) == 0 {
		return nil, nil
	}
	loc := strings.TrimSpace(locations[len(locations)-1])
	if loc == "" {
		return nil, nil
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return nil, err
	}

	plan := &Plan{URL: base.ResolveReference(ref), Budget: p.Budget - 1}
	plan.URL.Fragment, plan.URL.RawFragment = "", ""

	preserve := code == 307 || code == 308
	switch {
	case p.Method != "":
		method = strings.ToUpper(p.Method)
		preserve = true
		plan.KeepBody = method == "POST" || method == "PUT" || method == "DELETE"
	case p.Preserve == PreserveAlways:
		preserve = true
	case p.Preserve == PreserveNever:
		preserve = false
	}
	if p.Method == "" {
		plan.KeepBody = preserve
	}
	if preserve {
		plan.Method = method
	}
	return plan, nil
}
