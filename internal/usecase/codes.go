package usecase

import (
	"crypto/rand"
	"fmt"
)

// codeAlphabet avoids ambiguous characters so operators can read codes
// aloud without confusing 0/O or 1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newVerificationCode issues an opaque human-readable code like "K3QX-9MTF".
func newVerificationCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("usecase: generate code: %w", err)
	}
	out := make([]byte, 0, 9)
	for i, b := range buf {
		if i == 4 {
			out = append(out, '-')
		}
		out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
	}
	return string(out), nil
}
