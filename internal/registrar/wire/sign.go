package wire

import (
	"crypto/md5"
	"encoding/hex"
)

// Sign computes the request signature the registrar expects:
// md5(md5(body + secret) + secret), hex-encoded. The double-MD5 scheme is the
// provider's documented contract; substituting a stronger digest would break
// wire compatibility.
func Sign(body, secret string) string {
	inner := md5hex(body + secret)
	return md5hex(inner + secret)
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
