package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key namespaces. Each kind of cached value lives under its own prefix so
// keys of different kinds never collide.
const (
	NamespacePage = "page"
	NamespaceAI   = "ai"
	NamespaceRec  = "rec"
)

// Key returns namespace + ":" + hex(sha256(payload)).
func Key(namespace, payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// PageKey keys data derived from a page. Variants such as a summary length
// distinguish several entries for the same URL.
func PageKey(url string, variant ...string) string {
	return Key(NamespacePage, encodeParts(append([]string{url}, variant...)))
}

// AIKey hashes an ordered list of parts. Distinct lists never share a key.
func AIKey(parts ...string) string {
	return Key(NamespaceAI, encodeParts(parts))
}

// encodeParts writes each part as "<byte length>:<part>".
func encodeParts(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

func RecKey(intent string) string {
	return Key(NamespaceRec, intent)
}
