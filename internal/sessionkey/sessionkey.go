// Package sessionkey holds the per-conversation symmetric keys used to read encrypted job
// messages, disputes, and arbitration reasons.
//
// Keys are derived elsewhere; this package only looks them up and opens ciphertexts.
package sessionkey

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required session key length.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrNoSessionKey indicates no key is known for a pair of parties.
	ErrNoSessionKey = errors.New("session key not found")

	// ErrCiphertextTooShort indicates the payload cannot hold a nonce and tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Keys maps "partyA-partyB" pair keys to symmetric keys.
type Keys map[string][]byte

// PairKey builds the map key for an ordered pair of parties.
func PairKey(a, b common.Address) string {
	return a.Hex() + "-" + b.Hex()
}

// Lookup returns the key for (a, b), falling back to (b, a) since both parties of a
// conversation share one key.
func (k Keys) Lookup(a, b common.Address) ([]byte, error) {
	if key, ok := k[PairKey(a, b)]; ok {
		return key, nil
	}
	if key, ok := k[PairKey(b, a)]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%s: %w", PairKey(a, b), ErrNoSessionKey)
}

// Load reads a JSON object of pair keys to hex encoded keys.
func Load(path string) (Keys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session keys: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON object of pair keys to hex encoded keys. Pair keys are
// normalized to checksummed addresses.
func Parse(data []byte) (Keys, error) {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session keys: %w", err)
	}

	keys := make(Keys, len(raw))
	for pair, hexKey := range raw {
		parts := strings.SplitN(pair, "-", 2)
		if len(parts) != 2 || !common.IsHexAddress(parts[0]) || !common.IsHexAddress(parts[1]) {
			return nil, fmt.Errorf("invalid pair key: %s", pair)
		}
		key, err := hexutil.Decode(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid key for %s: %w", pair, err)
		}
		if len(key) != KeySize {
			return nil, fmt.Errorf("invalid key length for %s: %d", pair, len(key))
		}
		keys[PairKey(common.HexToAddress(parts[0]), common.HexToAddress(parts[1]))] = key
	}
	return keys, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and returns nonce || ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce || ciphertext payload produced by Seal.
func Open(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("xchacha20poly1305: %w", err)
	}

	nonceSize := aead.NonceSize()
	if len(sealed) < nonceSize+aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// OpenString decrypts sealed and returns the utf-8 plaintext.
func OpenString(key, sealed []byte) (string, error) {
	plaintext, err := Open(key, sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
