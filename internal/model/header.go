package model

import (
	"strings"
)

// CanonicalKey lower-cases a header name and turns underscores and
// spaces into hyphens, so "Content_Type", "content type" and
// "CONTENT-TYPE" all address the same entry.
func CanonicalKey(k string) string {
	k = strings.TrimSpace(k)
	b := make([]byte, len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case 'A' <= c && c <= 'Z':
			c += 'a' - 'A'
		case c == '_' || c == ' ':
			c = '-'
		}
		b[i] = c
	}
	return string(b)
}

// TitleKey renders a canonical key the way it goes on the wire:
// each hyphen separated segment gets an upper-case first letter.
func TitleKey(k string) string {
	b := []byte(k)
	upper := true
	for i, c := range b {
		if upper && 'a' <= c && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
		upper = c == '-'
	}
	return string(b)
}

// HeaderMap is an ordered, case-insensitive, multi-value header
// collection. Iteration follows first insertion order of each key.
// The zero value is ready to use.
type HeaderMap struct {
	keys   []string
	values map[string][]string
}

func NewHeaderMap() *HeaderMap {
	return &HeaderMap{values: map[string][]string{}}
}

func (h *HeaderMap) init() {
	if h.values == nil {
		h.values = map[string][]string{}
	}
}

// Add appends v to the values of k.
func (h *HeaderMap) Add(k, v string) {
	h.init()
	k = CanonicalKey(k)
	if _, ok := h.values[k]; !ok {
		h.keys = append(h.keys, k)
	}
	h.values[k] = append(h.values[k], v)
}

// Set replaces all values of k with v, keeping k's position.
func (h *HeaderMap) Set(k, v string) {
	h.init()
	k = CanonicalKey(k)
	if _, ok := h.values[k]; !ok {
		h.keys = append(h.keys, k)
	}
	h.values[k] = []string{v}
}

// SetDefault sets k only when it is absent and reports whether it did.
func (h *HeaderMap) SetDefault(k, v string) bool {
	if h.Has(k) {
		return false
	}
	h.Set(k, v)
	return true
}

func (h *HeaderMap) Del(k string) {
	if h == nil || h.values == nil {
		return
	}
	k = CanonicalKey(k)
	if _, ok := h.values[k]; !ok {
		return
	}
	delete(h.values, k)
	for i, key := range h.keys {
		if key == k {
			h.keys = append(h.keys[:i:i], h.keys[i+1:]...)
			break
		}
	}
}

func (h *HeaderMap) Has(k string) bool {
	if h == nil || h.values == nil {
		return false
	}
	_, ok := h.values[CanonicalKey(k)]
	return ok
}

// Get returns the first value of k, or "".
func (h *HeaderMap) Get(k string) string {
	if v := h.Values(k); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Last returns the last value of k, or "". Used where a repeated
// header resolves to its final occurrence (e.g. Location).
func (h *HeaderMap) Last(k string) string {
	if v := h.Values(k); len(v) > 0 {
		return v[len(v)-1]
	}
	return ""
}

// Values returns all values of k. The result must not be modified.
func (h *HeaderMap) Values(k string) []string {
	if h == nil || h.values == nil {
		return nil
	}
	return h.values[CanonicalKey(k)]
}

// Keys returns the canonical keys in insertion order.
func (h *HeaderMap) Keys() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.keys...)
}

func (h *HeaderMap) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Each calls f for every key in order with all of its values.
func (h *HeaderMap) Each(f func(k string, v []string)) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		f(k, h.values[k])
	}
}

// Merge sets every key of o into h, replacing existing values.
func (h *HeaderMap) Merge(o *HeaderMap) {
	o.Each(func(k string, v []string) {
		h.init()
		if _, ok := h.values[k]; !ok {
			h.keys = append(h.keys, k)
		}
		h.values[k] = append([]string(nil), v...)
	})
}

// Retain drops every key not listed in keep.
func (h *HeaderMap) Retain(keep ...string) {
	if h == nil {
		return
	}
	wanted := make(map[string]bool, len(keep))
	for _, k := range keep {
		wanted[CanonicalKey(k)] = true
	}
	for _, k := range h.Keys() {
		if !wanted[k] {
			h.Del(k)
		}
	}
}

func (h *HeaderMap) Clone() *HeaderMap {
	c := NewHeaderMap()
	c.Merge(h)
	return c
}

// Map flattens h into a plain map, mainly for inspection and tests.
func (h *HeaderMap) Map() map[string][]string {
	m := make(map[string][]string, h.Len())
	h.Each(func(k string, v []string) {
		m[k] = append([]string(nil), v...)
	})
	return m
}

// String renders h as CRLF separated "Title-Key: value" lines
// without the terminating blank line.
func (h *HeaderMap) String() string {
	var sb strings.Builder
	h.Each(func(k string, v []string) {
		for _, v := range v {
			if sb.Len() > 0 {
				sb.WriteString("\r\n")
			}
			sb.WriteString(TitleKey(k))
			sb.WriteString(": ")
			sb.WriteString(v)
		}
	})
	return sb.String()
}

// ParseHeaderLines builds a HeaderMap from a raw "Key: value" block,
// one field per line, and is the inverse of String. Repeated fields
// accumulate. Lines without a colon are skipped.
func ParseHeaderLines(raw string) *HeaderMap {
	h := NewHeaderMap()
	for _, line := range strings.Split(raw, "\n") {
		k, v, ok := strings.Cut(strings.TrimRight(line, "\r"), ":")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		h.Add(k, strings.TrimSpace(v))
	}
	return h
}
