package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint derives the cache key for a classification call. It is a pure
// function of the purpose tag, the (Unicode-normalized) content, and the
// extra parameters: same inputs always produce the same key. Params are
// folded in sorted order so map iteration order cannot change the key.
func Fingerprint(purpose, content string, params map[string]string) string {
	h := sha256.New()

	h.Write([]byte(purpose))
	h.Write([]byte{0})
	h.Write([]byte(norm.NFC.String(content)))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(params[k]))
	}

	return hex.EncodeToString(h.Sum(nil))
}
