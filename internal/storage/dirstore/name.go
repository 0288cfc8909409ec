package dirstore

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// maxEncodedName keeps encoded names, plus a short file suffix, under the
// usual 255-byte filename limit.
const maxEncodedName = 200

// digestPrefix marks hashed names. It is outside the base64url alphabet, so a
// hashed name never collides with an encoded one.
const digestPrefix = "~"

// EncodeName maps an opaque id to a single path component. Short ids are
// base64url-encoded and reversible; long ids become a SHA-256 digest, and
// their owner must keep the original id elsewhere.
func EncodeName(id string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(id))
	if len(enc) <= maxEncodedName {
		return enc
	}
	sum := sha256.Sum256([]byte(id))
	return digestPrefix + hex.EncodeToString(sum[:])
}

// DecodeName reverses EncodeName. It reports false for hashed or malformed names.
func DecodeName(name string) (string, bool) {
	if strings.HasPrefix(name, digestPrefix) {
		return "", false
	}
	b, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// IsDigestName reports whether name was produced by hashing a long id.
func IsDigestName(name string) bool {
	return strings.HasPrefix(name, digestPrefix)
}
