package artifacts

import (
	"crypto/rand"
	"math/big"
	"path/filepath"
	"strings"
)

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// idLen gives 22 base62 chars, over 128 bits of entropy. File IDs are
// capability-style handles; guessing one must be infeasible.
const idLen = 22

// NewFileID returns a fresh random ID with the original filename's
// extension appended so Content-Type sniffing and disk tooling behave.
func NewFileID(filename string) string {
	var b strings.Builder
	b.Grow(idLen + 8)
	max := big.NewInt(int64(len(base62)))
	for i := 0; i < idLen; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err) // crypto/rand failure is not recoverable
		}
		b.WriteByte(base62[n.Int64()])
	}
	if ext := safeExt(filename); ext != "" {
		b.WriteString(ext)
	}
	return b.String()
}

// safeExt keeps only short, plain-ASCII extensions. Anything else is
// dropped rather than sanitized.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 12 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
