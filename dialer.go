package httpsock

import (
	"github.com/frankli0324/go-httpsock/internal/dialer"
	"github.com/frankli0324/go-httpsock/internal/inflate"
)

type Dialer = dialer.Dialer
type CoreDialer = dialer.CoreDialer
type Target = dialer.Target

type ProxyConfig = dialer.ProxyConfig
type ProxyError = dialer.ProxyError
type ResolveConfig = dialer.ResolveConfig

type Inflater = inflate.Inflater
type SystemInflater = inflate.System
type GzipEnvelope = inflate.Envelope
type GzipMode = inflate.Mode

const (
	GzipStrict     = inflate.Strict
	GzipPermissive = inflate.Permissive
)

// DetectInflater runs the probe that picks the inflater used when
// Options.Inflater is nil.
func DetectInflater() Inflater { return inflate.Detect() }
