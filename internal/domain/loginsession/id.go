package loginsession

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

var ErrInvalidKey = errors.New("loginsession: derivation key must be 1 to 64 bytes")

// ValidateKey reports whether key can key the session id derivation.
func ValidateKey(key []byte) error {
	if len(key) == 0 || len(key) > blake2b.Size {
		return ErrInvalidKey
	}
	return nil
}

// ID identifies a login session. It is derived from the (email, client id) pair,
// so a second request for the same pair addresses the same record.
type ID string

func (id ID) String() string {
	return string(id)
}

// DeriveID computes BLAKE2b-256 keyed with key over the length-prefixed email and
// client id and encodes the digest as unpadded base64url.
// The result is deterministic and cannot be inverted without key.
func DeriveID(key []byte, email, clientID string) (ID, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	h, err := blake2b.New256(key)
	if err != nil {
		return "", fmt.Errorf("loginsession: init hash: %w", err)
	}

	var n [8]byte
	for _, part := range []string{email, clientID} {
		binary.BigEndian.PutUint64(n[:], uint64(len(part)))
		h.Write(n[:])
		h.Write([]byte(part))
	}

	return ID(base64.RawURLEncoding.EncodeToString(h.Sum(nil))), nil
}
