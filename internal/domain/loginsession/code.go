package loginsession

import (
	"crypto/subtle"
	"fmt"

	"gitlab.com/ucmsv2/idbroker/pkg/randcode"
)

// CodeAlphabet holds digits and letters that are hard to confuse when read from an email:
// 0 1 5 8 b i l o s u B D I O are left out.
const CodeAlphabet = "234679acdefghjkmnpqrtvwxyzACEFGHJKLMNPQRSTUVWXYZ"

const DefaultCodeLength = 6

var codeAlphabet = []rune(CodeAlphabet)

func GenerateCode(length int) (string, error) {
	code, err := randcode.Generate(codeAlphabet, length)
	if err != nil {
		return "", fmt.Errorf("loginsession: generate code: %w", err)
	}
	return code, nil
}

func codesEqual(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
