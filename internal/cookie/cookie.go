// Package cookie keeps the cookies a server hands out over a redirect
// chain. Cookies live in process memory only.
package cookie

import (
	"strconv"
	"strings"
	"time"
)

type Cookie struct {
	Key   string
	Value string

	// Attributes holds name=value attributes with lower-cased names,
	// e.g. "domain", "path", "expires" (raw text), "max-age".
	Attributes map[string]string
	// Flags holds attributes without a value, e.g. "secure", "httponly".
	Flags map[string]bool
	// Expires is the resolved expiry time. The zero value means a
	// session cookie.
	Expires time.Time
}

var expiresLayouts = []string{
	time.RFC1123,                    // Mon, 02 Jan 2006 15:04:05 MST
	"Mon, 02-Jan-2006 15:04:05 MST", // netscape draft
	time.RFC850,                     // Monday, 02-Jan-06 15:04:05 MST
	"Mon, 02-Jan-06 15:04:05 MST",
	time.ANSIC,
	time.RFC1123Z,
}

func parseExpires(s string) (time.Time, bool) {
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Parse parses a single Set-Cookie value. It returns nil when the
// value carries no cookie name.
func Parse(s string) *Cookie {
	return ParseAt(s, time.Now())
}

// ParseAt is Parse with max-age evaluated relative to now.
func ParseAt(s string, now time.Time) *Cookie {
	parts := strings.Split(s, ";")
	k, v, _ := strings.Cut(parts[0], "=")
	c := &Cookie{
		Key:        strings.TrimSpace(k),
		Value:      strings.TrimSpace(v),
		Attributes: map[string]string{},
		Flags:      map[string]bool{},
	}
	if c.Key == "" {
		return nil
	}
	for _, attr := range parts[1:] {
		name, val, ok := strings.Cut(strings.TrimSpace(attr), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if ok {
			c.Attributes[name] = strings.TrimSpace(val)
		} else {
			c.Flags[name] = true
		}
	}

	// max-age wins over expires (RFC 6265 section 5.3)
	if ma, ok := c.Attributes["max-age"]; ok {
		if secs, err := strconv.ParseInt(ma, 10, 64); err == nil {
			if secs <= 0 {
				c.Expires = time.Unix(0, 0)
			} else {
				c.Expires = now.Add(time.Duration(secs) * time.Second)
			}
			return c
		}
	}
	if exp, ok := c.Attributes["expires"]; ok {
		// unparsable dates leave a session cookie
		c.Expires, _ = parseExpires(exp)
	}
	return c
}

// ParseAll parses every Set-Cookie value, dropping nameless ones.
func ParseAll(values []string, now time.Time) []*Cookie {
	var ret []*Cookie
	for _, v := range values {
		if c := ParseAt(v, now); c != nil {
			ret = append(ret, c)
		}
	}
	return ret
}

// Expired reports whether c must no longer be sent at now. Session
// cookies never expire here.
func (c *Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && c.Expires.Before(now)
}

// String renders the name=value pair used in a Cookie header.
func (c *Cookie) String() string {
	return c.Key + "=" + c.Value
}

func (c *Cookie) Clone() *Cookie {
	n := *c
	n.Attributes = make(map[string]string, len(c.Attributes))
	for k, v := range c.Attributes {
		n.Attributes[k] = v
	}
	n.Flags = make(map[string]bool, len(c.Flags))
	for k, v := range c.Flags {
		n.Flags[k] = v
	}
	return &n
}
