package wallet

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrInsufficientEntropy is returned when the random source cannot supply fresh key material.
var ErrInsufficientEntropy = errors.New("insufficient entropy")

// maxRedraws bounds how many out-of-range secrets are discarded before giving up on a source.
const maxRedraws = 16

// KeyPair is a secp256k1 private key and the address derived from it.
// The address is computed once from the key and can never be set independently.
type KeyPair struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(key *ecdsa.PrivateKey) KeyPair {
	return KeyPair{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// KeyPairFromHex parses a hex encoded 32 byte private key, with or without the 0x prefix.
func KeyPairFromHex(s string) (KeyPair, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return KeyPair{}, fmt.Errorf("parsing private key: %w", err)
	}
	return NewKeyPair(key), nil
}

// PrivateKey returns the private key
func (k KeyPair) PrivateKey() *ecdsa.PrivateKey {
	return k.key
}

// Address returns the Ethereum address derived from the private key
func (k KeyPair) Address() common.Address {
	return k.address
}

// PrivateKeyHex returns the 0x prefixed hex encoding of the private key.
func (k KeyPair) PrivateKeyHex() string {
	return hexutil.Encode(crypto.FromECDSA(k.key))
}

// IsZero reports whether the key pair was never initialized.
func (k KeyPair) IsZero() bool {
	return k.key == nil
}

// Generator produces fresh key pairs from a random source.
type Generator struct {
	source io.Reader
}

// NewGenerator returns a generator reading from source. A nil source uses crypto/rand.
func NewGenerator(source io.Reader) *Generator {
	if source == nil {
		source = rand.Reader
	}
	return &Generator{source: source}
}

// Generate lazily yields n fresh key pairs. Iteration stops after the first error,
// which wraps ErrInsufficientEntropy when the source fails or repeats itself.
func (g *Generator) Generate(n int) iter.Seq2[KeyPair, error] {
	return func(yield func(KeyPair, error) bool) {
		seen := make(map[common.Address]struct{}, n)
		for i := range n {
			kp, err := g.next()
			if err != nil {
				yield(KeyPair{}, fmt.Errorf("key %d: %w", i, err))
				return
			}
			if _, dup := seen[kp.address]; dup {
				yield(KeyPair{}, fmt.Errorf("key %d: source repeated a secret: %w", i, ErrInsufficientEntropy))
				return
			}
			seen[kp.address] = struct{}{}
			if !yield(kp, nil) {
				return
			}
		}
	}
}

// GenerateAll collects n key pairs, failing on the first error.
func (g *Generator) GenerateAll(n int) ([]KeyPair, error) {
	if n < 0 {
		return nil, fmt.Errorf("key count must not be negative, got %d", n)
	}
	keys := make([]KeyPair, 0, n)
	for kp, err := range g.Generate(n) {
		if err != nil {
			return nil, err
		}
		keys = append(keys, kp)
	}
	return keys, nil
}

// next draws 32 random bytes and retries when they fall outside the curve order.
func (g *Generator) next() (KeyPair, error) {
	secret := make([]byte, 32)
	for range maxRedraws {
		if _, err := io.ReadFull(g.source, secret); err != nil {
			return KeyPair{}, fmt.Errorf("%w: %w", ErrInsufficientEntropy, err)
		}
		key, err := crypto.ToECDSA(secret)
		if err != nil {
			continue
		}
		return NewKeyPair(key), nil
	}
	return KeyPair{}, fmt.Errorf("no valid secret after %d draws: %w", maxRedraws, ErrInsufficientEntropy)
}
