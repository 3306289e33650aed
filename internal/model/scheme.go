package model

import "strings"

// DefaultPort maps a scheme to its well known port, or 0 when the
// scheme is unknown.
func DefaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "http", "":
		return 80
	case "https", "tls", "ssl":
		return 443
	case "ftp":
		return 21
	case "sftp":
		return 22
	default:
		return 0
	}
}

// IsTLS reports whether scheme expects a TLS wrapped socket.
func IsTLS(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "https", "tls", "ssl":
		return true
	}
	return false
}
