package verifycode

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultLength is the number of digits in a generated code.
const DefaultLength = 6

var ten = big.NewInt(10)

// Generate returns length uniformly random decimal digits.
// If length <= 0, it defaults to DefaultLength.
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("verifycode: generate: %w", err)
		}
		b[i] = byte('0' + n.Int64())
	}
	return string(b), nil
}
