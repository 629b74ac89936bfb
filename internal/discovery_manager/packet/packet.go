// Package packet encodes discovery payloads into datagram bodies.
//
// Layout (big-endian):
//
//	[count:int32] { [keyLen:int16][key] [valueLen:int32][value] } × count
//
// Entries are written in ascending key order so equal maps always produce
// equal bodies.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

const (
	// MaxDatagramSize is the largest body that fits a single Ethernet frame
	// without IP fragmentation (1500 - 20 IPv4 - 8 UDP).
	MaxDatagramSize = 1472

	// MaxKeyLen is the largest key a signed 16-bit length can describe.
	MaxKeyLen = math.MaxInt16

	countSize    = 4
	keyLenSize   = 2
	valueLenSize = 4
	minEntrySize = keyLenSize + valueLenSize
)

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrKeyTooLong      = errors.New("key too long")
	ErrEmptyKey        = errors.New("empty key")
	ErrInvalidUTF8     = errors.New("invalid utf-8")
	ErrValueTooLong    = errors.New("value too long")
)

// Encode serializes payload. Every map accepted by Encode is restored
// exactly by Decode.
func Encode(payload map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(payload))
	size := countSize
	for k, v := range payload {
		if k == "" {
			return nil, ErrEmptyKey
		}
		if len(k) > MaxKeyLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(k))
		}
		if len(v) > math.MaxInt32 {
			return nil, fmt.Errorf("%w: key %q", ErrValueTooLong, k)
		}
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("%w: key %q", ErrInvalidUTF8, k)
		}
		if !utf8.ValidString(v) {
			return nil, fmt.Errorf("%w: value of key %q", ErrInvalidUTF8, k)
		}
		keys = append(keys, k)
		size += minEntrySize + len(k) + len(v)
	}
	sort.Strings(keys)

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))
	for _, k := range keys {
		v := payload[k]
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(k)))
		buf = append(buf, k...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}

	return buf, nil
}

// Decode parses a body produced by Encode. Any inconsistency is reported
// as an error wrapping ErrMalformedPacket.
func Decode(data []byte) (map[string]string, error) {
	if len(data) < countSize {
		return nil, malformed("short header: %d bytes", len(data))
	}

	count := int32(binary.BigEndian.Uint32(data))
	if count < 0 {
		return nil, malformed("negative entry count %d", count)
	}
	rest := data[countSize:]
	if int64(count)*minEntrySize > int64(len(rest)) {
		return nil, malformed("entry count %d exceeds body of %d bytes", count, len(rest))
	}

	payload := make(map[string]string, count)
	for i := int32(0); i < count; i++ {
		key, n, err := readField(rest, keyLenSize)
		if err != nil {
			return nil, malformed("entry %d key: %v", i, err)
		}
		rest = rest[n:]

		value, n, err := readField(rest, valueLenSize)
		if err != nil {
			return nil, malformed("entry %d value: %v", i, err)
		}
		rest = rest[n:]

		if key == "" {
			return nil, malformed("entry %d: empty key", i)
		}
		if _, dup := payload[key]; dup {
			return nil, malformed("duplicate key %q", key)
		}
		payload[key] = value
	}

	if len(rest) != 0 {
		return nil, malformed("%d trailing bytes", len(rest))
	}

	return payload, nil
}

// readField reads a length-prefixed UTF-8 string whose prefix is
// prefixSize bytes wide and returns it with the number of bytes consumed.
func readField(b []byte, prefixSize int) (string, int, error) {
	if len(b) < prefixSize {
		return "", 0, fmt.Errorf("missing length prefix")
	}

	var n int
	switch prefixSize {
	case keyLenSize:
		n = int(int16(binary.BigEndian.Uint16(b)))
	case valueLenSize:
		n = int(int32(binary.BigEndian.Uint32(b)))
	}
	if n < 0 {
		return "", 0, fmt.Errorf("negative length %d", n)
	}
	if len(b)-prefixSize < n {
		return "", 0, fmt.Errorf("length %d overruns buffer of %d bytes", n, len(b)-prefixSize)
	}

	raw := b[prefixSize : prefixSize+n]
	if !utf8.Valid(raw) {
		return "", 0, fmt.Errorf("invalid utf-8")
	}

	return string(raw), prefixSize + n, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPacket, fmt.Sprintf(format, args...))
}
