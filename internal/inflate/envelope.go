package inflate

import (
	"bytes"
	"compress/flate"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"go.uber.org/zap"
)

var (
	ErrFormat         = errors.New("gzip: not in gzip format")
	ErrMethod         = errors.New("gzip: cannot decode anything but deflated streams")
	ErrHeaderChecksum = errors.New("gzip: header checksum mismatch")
	ErrChecksum       = errors.New("gzip: checksum mismatch")
	ErrSize           = errors.New("gzip: stream size mismatch")
)

const (
	flagText = 1 << iota
	flagHCRC
	flagExtra
	flagName
	flagComment
)

// Mode chooses what happens when a checksum does not match.
type Mode int

const (
	// Strict fails the decode.
	Strict Mode = iota
	// Permissive logs a warning and returns the inflated bytes.
	Permissive
)

// Envelope parses the gzip member framing (RFC 1952) itself and only
// hands the raw DEFLATE payload to compress/flate.
type Envelope struct {
	Mode Mode
	// Limit, when positive, inflates at most Limit bytes and skips the
	// trailer checks.
	Limit  int64
	Logger *zap.Logger
}

func (e *Envelope) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Envelope) mismatch(err error, fields ...zap.Field) error {
	if e.Mode == Strict {
		return err
	}
	e.logger().Warn("gzip envelope "+err.Error(), fields...)
	return nil
}

// payloadOffset validates the fixed header and skips the optional
// sections announced by the flag byte.
func (e *Envelope) payloadOffset(data []byte) (int, error) {
	if len(data) < 18 {
		return 0, ErrFormat
	}
	if data[0] != 0x1f || data[1] != 0x8b {
		return 0, ErrFormat
	}
	if data[2] != 8 {
		return 0, ErrMethod
	}
	flg := data[3]
	pos := 10
	if flg&flagExtra != 0 {
		if pos+2 > len(data) {
			return 0, io.ErrUnexpectedEOF
		}
		pos += 2 + int(binary.LittleEndian.Uint16(data[pos:]))
	}
	for _, f := range []byte{flagName, flagComment} {
		if flg&f == 0 {
			continue
		}
		if pos > len(data) {
			return 0, io.ErrUnexpectedEOF
		}
		i := bytes.IndexByte(data[pos:], 0)
		if i < 0 {
			return 0, io.ErrUnexpectedEOF
		}
		pos += i + 1
	}
	if flg&flagHCRC != 0 {
		if pos+2 > len(data) {
			return 0, io.ErrUnexpectedEOF
		}
		want := binary.LittleEndian.Uint16(data[pos:])
		if got := uint16(crc32.ChecksumIEEE(data[:pos])); got != want {
			if err := e.mismatch(ErrHeaderChecksum, zap.Uint16("want", want), zap.Uint16("got", got)); err != nil {
				return 0, err
			}
		}
		pos += 2
	}
	if pos > len(data) {
		return 0, io.ErrUnexpectedEOF
	}
	return pos, nil
}

func (e *Envelope) Inflate(data []byte) ([]byte, error) {
	pos, err := e.payloadOffset(data)
	if err != nil {
		return nil, err
	}

	payload := bytes.NewReader(data[pos:])
	fr := flate.NewReader(payload)
	defer fr.Close()

	if e.Limit > 0 {
		out, err := io.ReadAll(io.LimitReader(fr, e.Limit))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return out, nil
	}

	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}

	// bytes.Reader is an io.ByteReader, so flate stopped right after
	// the final block and the trailer is what is left.
	var trailer [8]byte
	if _, err := io.ReadFull(payload, trailer[:]); err != nil {
		return nil, ErrFormat
	}
	wantCRC := binary.LittleEndian.Uint32(trailer[:4])
	wantSize := binary.LittleEndian.Uint32(trailer[4:])
	if got := crc32.ChecksumIEEE(out); got != wantCRC {
		if err := e.mismatch(ErrChecksum, zap.Uint32("want", wantCRC), zap.Uint32("got", got)); err != nil {
			return nil, err
		}
	} else if got := uint32(len(out)); got != wantSize {
		if err := e.mismatch(ErrSize, zap.Uint32("want", wantSize), zap.Uint32("got", got)); err != nil {
			return nil, err
		}
	}
	return out, nil
}
