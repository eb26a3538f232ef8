package mappack

import (
	"bytes"
	_ "crypto/sha256" // registers the digest algorithm
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ObjectExt is the extension of published mappack objects.
const ObjectExt = ".zip"

// ContentKey identifies a normalized pool. It is the lowercase hex SHA-256
// of the pool's canonical serialization.
type ContentKey string

// DeriveKey computes the content key of a normalized pool.
func DeriveKey(entries []NormalizedEntry) ContentKey {
	return ContentKey(digest.SHA256.FromBytes(Canonical(entries)).Encoded())
}

// Canonical returns the canonical serialization of a normalized pool: a
// compact JSON array of {"url","slot"} objects in the given order, without
// HTML escaping or a trailing newline.
func Canonical(entries []NormalizedEntry) []byte {
	if entries == nil {
		entries = []NormalizedEntry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a slice of string-only structs cannot fail.
	_ = enc.Encode(entries)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// ParseContentKey validates s as a content key.
func ParseContentKey(s string) (ContentKey, error) {
	if err := digest.SHA256.Validate(s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return ContentKey(s), nil
}

// ParseObjectName extracts the content key from an object name of the form
// "{key}.zip".
func ParseObjectName(name string) (ContentKey, error) {
	enc, ok := strings.CutSuffix(name, ObjectExt)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	return ParseContentKey(enc)
}

// String returns the key as hex.
func (k ContentKey) String() string {
	return string(k)
}

// ObjectName returns the store object name of the pack, "{key}.zip".
func (k ContentKey) ObjectName() string {
	return string(k) + ObjectExt
}

// Digest returns the key as an OCI digest.
func (k ContentKey) Digest() digest.Digest {
	return digest.NewDigestFromEncoded(digest.SHA256, string(k))
}
