package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultCodeLength is the number of digits in an email one-time code.
const DefaultCodeLength = 6

var ten = big.NewInt(10)

// GenerateNumericCode returns length independent, uniformly distributed decimal digits.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}
