package randcode

import (
	"crypto/rand"
	"errors"
	"math/big"
)

var ErrInvalidLength = errors.New("randcode: length must be positive")

// Generate draws length symbols uniformly from alphabet using crypto/rand.
func Generate(alphabet []rune, length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	if len(alphabet) == 0 {
		return "", errors.New("randcode: empty alphabet")
	}

	max := big.NewInt(int64(len(alphabet)))
	b := make([]rune, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}

		b[i] = alphabet[n.Int64()]
	}

	return string(b), nil
}
