// Package session derives transcript keys from a client's address and the
// topic it writes to.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/ashureev/llama-relay/internal/domain"
)

const hexDigits = "0123456789ABCDEF"

// MaxKeyLen bounds a session key so that "<key>.json.tmp" stays under the
// 255-byte file name limit of common filesystems.
const MaxKeyLen = 200

// digestLen is the number of hex characters of sha256 kept in a shortened key.
const digestLen = 32

// shortenedMarker separates a cut key from its digest. Escaping always
// follows '%' with two hex digits, so "%%" never occurs in a full key.
const shortenedMarker = "%%"

// Resolve returns the session key for a client address, port and topic.
//
// The key has the form <address>_<port>_<topic>. A space in the topic
// becomes an underscore; every other byte outside [A-Za-z0-9.-] in the
// topic, including '_' and '%', is percent-encoded, as is every byte
// outside [A-Za-z0-9._-] in the address. Distinct inputs therefore never
// share a key. Keys longer than MaxKeyLen are cut and suffixed with a
// digest of the full key. The caller must reject an empty topic first.
func Resolve(address string, port int, topic string) domain.SessionKey {
	var b strings.Builder
	b.Grow(len(address) + len(topic) + 8)

	escape(&b, address, true)
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(port))
	b.WriteByte('_')
	escapeTopic(&b, topic)

	return domain.SessionKey(shorten(b.String()))
}

func escapeTopic(b *strings.Builder, topic string) {
	for i := 0; i < len(topic); i++ {
		if topic[i] == ' ' {
			b.WriteByte('_')
			continue
		}
		escape(b, topic[i:i+1], false)
	}
}

func escape(b *strings.Builder, s string, allowUnderscore bool) {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) || (allowUnderscore && c == '_') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
}

func isSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '-':
		return true
	}
	return false
}

func shorten(key string) string {
	if len(key) <= MaxKeyLen {
		return key
	}
	sum := sha256.Sum256([]byte(key))

	cut := MaxKeyLen - len(shortenedMarker) - digestLen
	// Do not split a percent escape.
	for i := cut - 2; i < cut; i++ {
		if key[i] == '%' {
			cut = i
			break
		}
	}
	return key[:cut] + shortenedMarker + hex.EncodeToString(sum[:])[:digestLen]
}
