// Package keyutil holds the pure pieces of key composition: sanitization
// and group-prefix hashing. Split out so engines and tests share one
// implementation - the same logical key must resolve identically across
// single and bulk operations.
package keyutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var spaceRun = regexp.MustCompile(`\s+`)

// Sanitize collapses whitespace runs in a logical key to a single
// underscore. Deterministic; no other characters are touched.
func Sanitize(key string) string {
	return spaceRun.ReplaceAllString(key, "_")
}

// GroupHash folds group version tokens into a fixed-width (16 hex chars)
// content hash so composed-key length stays bounded regardless of group
// count or token size.
func GroupHash(tokens []string) string {
	sum := sha256.Sum256([]byte(strings.Join(tokens, "_")))
	return hex.EncodeToString(sum[:8])
}
