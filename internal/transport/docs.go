// package transport contains implementations to requirements on *message syntaxes*
// defined by http related RFCs, as seen from the client side of a single
// HTTP/1.x connection.
//
// as of 2022.06, RFCs that were to define HTTP/1.1 (RFC753x) are obsoleted by:
//
//	HTTP Semantics (RFC9110)
//	HTTP Caching (RFC9111) and
//	HTTP/1.1 (RFC9112)
//
// the request head is written in one piece by [BuildHead] and [Write], the
// response head is parsed by [ReadHead], and the body framing (RFC9112 section 6.3)
// is picked by [SelectStrategy] and consumed by [ReadBody].

package transport
