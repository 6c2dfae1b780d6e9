package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Storage returns the provider key for a collection snapshot.
// Layout: snap:<namespace>:<collection key>
func Storage(ns, key string) string {
	var b strings.Builder
	b.Grow(len("snap:") + len(ns) + 1 + len(key))
	b.WriteString("snap:")
	b.WriteString(ns)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

// Redact keeps the collection prefix of a key and hashes the scope, so logs
// show "cart:3f9a..." instead of a user id. Keys without a scope are hashed whole.
func Redact(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return digest(key)
	}
	return key[:i+1] + digest(key[i+1:])
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
