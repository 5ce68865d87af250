package kv

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// box obfuscates values at rest with a key derived from Config.SecretKey.
// This keeps tokens out of casual reach of anything reading the store
// file; it is not a substitute for OS-level protection.
type box struct {
	key [32]byte
}

func newBox(secret string) *box {
	return &box{key: sha256.Sum256([]byte(secret))}
}

func (b *box) seal(plain []byte) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", errors.Wrap(err, "reading nonce")
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &b.key)
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (b *box) open(encoded string) ([]byte, error) {
	sealed, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decoding sealed value")
	}
	if len(sealed) < 24 {
		return nil, errors.New("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &b.key)
	if !ok {
		return nil, errors.New("opening sealed value")
	}
	return plain, nil
}
