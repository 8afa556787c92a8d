package ledger

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	rippleAlphabet   = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
	familySeedPrefix = 0x21
	seedEntropyBytes = 16
)

// DeriveAddress maps a secret to a stable pseudo-address for the simulated
// ledger. It is not the XRPL key derivation.
func DeriveAddress(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return "r" + hex.EncodeToString(sum[:20])
}

// NewSecret returns a fresh random secret for simulated accounts.
func NewSecret() string {
	id := uuid.New()
	return "s" + hex.EncodeToString(id[:])
}

// NewSeed returns a fresh secp256k1 family seed, the secret format real
// nodes and NewSigner accept.
func NewSeed() (string, error) {
	entropy := make([]byte, seedEntropyBytes)
	if _, err := rand.Read(entropy); err != nil {
		return "", fmt.Errorf("seed entropy: %w", err)
	}
	return encodeSeed(entropy), nil
}

// encodeSeed base58check-encodes entropy with the family seed prefix.
func encodeSeed(entropy []byte) string {
	payload := append([]byte{familySeedPrefix}, entropy...)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	payload = append(payload, second[:4]...)

	n := new(big.Int).SetBytes(payload)
	radix := big.NewInt(int64(len(rippleAlphabet)))
	mod := new(big.Int)
	var out []byte
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, rippleAlphabet[mod.Int64()])
	}
	for _, b := range payload {
		if b != 0 {
			break
		}
		out = append(out, rippleAlphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
