package cos

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// JoinWords joins URL-path-style words with "/", skipping empty ones.
// Grounded on cos.JoinWords as used by transport.ObjURLPath/_urlPath.
func JoinWords(words ...string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, "/")
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func StringInSlice(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var shortIDEnc = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// ShortID returns a short random identifier used to correlate log lines
// for a given handle/session (e.g. "<pfx:3k2f9a1>"). Unlike the teacher's
// cluster-wide unique node IDs (shortid+xxhash), a log-correlation tag only
// needs local uniqueness for the lifetime of the process.
func ShortID(n int) string {
	if n <= 0 {
		n = 7
	}
	buf := make([]byte, (n*5+7)/8+1)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is a fatal platform condition; fall back to
		// a fixed, clearly-fake tag rather than panicking inside a logger.
		return strings.Repeat("x", n)
	}
	s := shortIDEnc.EncodeToString(buf)
	if len(s) > n {
		s = s[:n]
	}
	return s
}
