package timestamp

import "github.com/Voskan/merkle-timestamp/internal/digest"

// Digest is the fixed 512-bit value the service stores and commits to. It
// is a type alias for the internal representation so callers can pass
// values returned by one API call into another without a conversion, while
// the implementation stays free to evolve behind internal/digest.
type Digest = digest.Digest

// DigestSize is the fixed digest width in bytes (512 bits).
const DigestSize = digest.Size

// ParseDigest validates and copies a raw 64-byte slice into a Digest.
func ParseDigest(b []byte) (Digest, error) {
	return digest.Parse(b)
}

// ParseDigestBase64 decodes standard base64 and parses the result as a Digest.
func ParseDigestBase64(s string) (Digest, error) {
	return digest.ParseBase64(s)
}
