// Package certs generates RSA keys and PKCS#10 certificate signing requests.
// The DER structures are built field-by-field with narrow tag/length/OID
// helpers instead of a general ASN.1 library, to stay byte-compatible with
// what the certificate provider expects.
package certs

import (
	"fmt"
	"math/big"
)

const (
	tagInteger         = 0x02
	tagBitString       = 0x03
	tagNull            = 0x05
	tagOID             = 0x06
	tagUTF8String      = 0x0C
	tagPrintableString = 0x13
	tagIA5String       = 0x16
	tagSequence        = 0x30
	tagSet             = 0x31
	tagContext0        = 0xA0
)

// derLength encodes a content length, using the short form below 128 bytes
// and the long form (length-of-length prefix) above.
func derLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}

	var digits []byte
	for v := n; v > 0; v >>= 8 {
		digits = append([]byte{byte(v & 0xFF)}, digits...)
	}
	return append([]byte{0x80 | byte(len(digits))}, digits...)
}

func derTag(tag byte, content []byte) []byte {
	out := []byte{tag}
	out = append(out, derLength(len(content))...)
	return append(out, content...)
}

func derSequence(children ...[]byte) []byte {
	return derTag(tagSequence, concat(children))
}

func derSet(children ...[]byte) []byte {
	return derTag(tagSet, concat(children))
}

func derNull() []byte {
	return []byte{tagNull, 0x00}
}

// derOID encodes an object identifier: the first two arcs packed into one
// byte, the rest base-128 with continuation bits.
func derOID(arcs []int) ([]byte, error) {
	if len(arcs) < 2 {
		return nil, fmt.Errorf("oid needs at least two arcs")
	}
	if arcs[0] > 2 || (arcs[0] < 2 && arcs[1] >= 40) {
		return nil, fmt.Errorf("invalid oid root arcs %d.%d", arcs[0], arcs[1])
	}

	content := []byte{byte(arcs[0]*40 + arcs[1])}
	for _, arc := range arcs[2:] {
		content = append(content, base128(arc)...)
	}
	return derTag(tagOID, content), nil
}

func base128(v int) []byte {
	if v == 0 {
		return []byte{0x00}
	}
	var out []byte
	for ; v > 0; v >>= 7 {
		out = append([]byte{byte(v&0x7F) | 0x80}, out...)
	}
	out[len(out)-1] &^= 0x80
	return out
}

// derInteger encodes a non-negative integer, prepending a zero byte when the
// leading bit is set so the value stays positive.
func derInteger(v *big.Int) []byte {
	content := v.Bytes()
	if len(content) == 0 {
		content = []byte{0x00}
	} else if content[0]&0x80 != 0 {
		content = append([]byte{0x00}, content...)
	}
	return derTag(tagInteger, content)
}

func derSmallInt(v int) []byte {
	return derInteger(big.NewInt(int64(v)))
}

// derBitString wraps content as a bit string with zero unused bits.
func derBitString(content []byte) []byte {
	return derTag(tagBitString, append([]byte{0x00}, content...))
}

func derUTF8String(s string) []byte {
	return derTag(tagUTF8String, []byte(s))
}

func derPrintableString(s string) []byte {
	return derTag(tagPrintableString, []byte(s))
}

func derIA5String(s string) []byte {
	return derTag(tagIA5String, []byte(s))
}

func concat(chunks [][]byte) []byte {
	var out []byte
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}
