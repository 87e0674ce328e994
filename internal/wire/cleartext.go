// Package wire encodes and decodes oracle cleartext payloads. A payload is
// a fixed-width concatenation of big-endian int64 fields, one per decrypted
// ciphertext handle, in the order the handles were submitted for decryption.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// FieldWidth is the byte width of one cleartext field.
const FieldWidth = 8

// ErrMalformedCleartext is returned when a payload cannot be decoded into
// the expected number of fixed-width fields.
var ErrMalformedCleartext = errors.New("wire: malformed cleartext payload")

// EncodeCleartext packs values into a fixed-width payload.
func EncodeCleartext(values []int64) []byte {
	buf := make([]byte, len(values)*FieldWidth)
	for i, v := range values {
		binary.BigEndian.PutUint64(buf[i*FieldWidth:], uint64(v))
	}
	return buf
}

// DecodeCleartext unpacks a payload into exactly n int64 fields.
func DecodeCleartext(payload []byte, n int) ([]int64, error) {
	if len(payload) != n*FieldWidth {
		return nil, fmt.Errorf("%w: got %d bytes, want %d",
			ErrMalformedCleartext, len(payload), n*FieldWidth)
	}
	values := make([]int64, n)
	for i := range values {
		values[i] = int64(binary.BigEndian.Uint64(payload[i*FieldWidth:]))
	}
	return values, nil
}
