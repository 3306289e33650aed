package model

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"
)

const FormContentType = "application/x-www-form-urlencoded"

// EncodeBody turns a caller supplied request body into the bytes that
// go on the wire. Structured bodies are form encoded, in which case a
// content type is returned as well.
//
// nil yields a nil body. Readers are drained once.
func EncodeBody(body interface{}) (data []byte, contentType string, err error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return []byte(b), "", nil
	case []byte:
		return b, "", nil
	case *bytes.Buffer: // taken by value like http.NewRequest does
		return append([]byte(nil), b.Bytes()...), "", nil
	case *bytes.Reader:
		snapshot := *b
		data, err = io.ReadAll(&snapshot)
		return data, "", err
	case *strings.Reader:
		snapshot := *b
		data, err = io.ReadAll(&snapshot)
		return data, "", err
	case url.Values:
		return []byte(b.Encode()), FormContentType, nil
	case map[string][]string:
		return []byte(url.Values(b).Encode()), FormContentType, nil
	case map[string]string:
		v := make(url.Values, len(b))
		for k, s := range b {
			v.Set(k, s)
		}
		return []byte(v.Encode()), FormContentType, nil
	case io.Reader:
		data, err = io.ReadAll(b)
		if c, ok := b.(io.Closer); ok {
			c.Close()
		}
		return data, "", err
	default:
		return nil, "", fmt.Errorf("unsupported body type: %T", body)
	}
}
