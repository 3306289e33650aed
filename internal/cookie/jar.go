package cookie

import (
	"strings"
	"time"
)

// Jar is an insertion ordered set of cookies keyed by name. A later
// cookie with the same name replaces the earlier one in place. The
// zero value is an empty jar.
type Jar struct {
	cookies []*Cookie
}

func (j *Jar) Store(cs ...*Cookie) {
	for _, c := range cs {
		if c == nil {
			continue
		}
		replaced := false
		for i, old := range j.cookies {
			if old.Key == c.Key {
				j.cookies[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			j.cookies = append(j.cookies, c)
		}
	}
}

// SetCookies parses raw Set-Cookie values into the jar.
func (j *Jar) SetCookies(values []string, now time.Time) {
	j.Store(ParseAll(values, now)...)
}

func (j *Jar) Len() int {
	if j == nil {
		return 0
	}
	return len(j.cookies)
}

// Cookies returns every cookie in the jar, expired ones included.
func (j *Jar) Cookies() []*Cookie {
	if j == nil {
		return nil
	}
	return append([]*Cookie(nil), j.cookies...)
}

// Valid returns the cookies that have not expired at now.
func (j *Jar) Valid(now time.Time) []*Cookie {
	if j == nil {
		return nil
	}
	var ret []*Cookie
	for _, c := range j.cookies {
		if !c.Expired(now) {
			ret = append(ret, c)
		}
	}
	return ret
}

func (j *Jar) Clone() *Jar {
	n := &Jar{}
	for _, c := range j.Cookies() {
		n.cookies = append(n.cookies, c.Clone())
	}
	return n
}

// Header merges cookies into an existing Cookie header value. Pairs
// already present keep their position; a cookie with the same name
// replaces the value, new names are appended.
func Header(existing string, cookies []*Cookie) string {
	type pair struct {
		k, v string
		bare bool // "name" without "=value"
	}
	var pairs []pair
	for _, p := range strings.Split(existing, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, v, ok := strings.Cut(p, "=")
		pairs = append(pairs, pair{k, v, !ok})
	}
	for _, c := range cookies {
		found := false
		for i := range pairs {
			if pairs[i].k == c.Key {
				pairs[i].v, pairs[i].bare = c.Value, false
				found = true
				break
			}
		}
		if !found {
			pairs = append(pairs, pair{k: c.Key, v: c.Value})
		}
	}
	s := make([]string, len(pairs))
	for i, p := range pairs {
		if p.bare {
			s[i] = p.k
		} else {
			s[i] = p.k + "=" + p.v
		}
	}
	return strings.Join(s, "; ")
}
