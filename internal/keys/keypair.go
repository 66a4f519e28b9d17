// Package keys manages Ed25519 keypairs used to sign clicker transactions.
//
// Keypair files use the Solana CLI format: a JSON array of the 64 bytes of
// the Ed25519 private key (seed followed by public key).
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// BIP-39 seed derivation parameters.
const (
	seedIterations = 2048
	seedLen        = 64
	saltPrefix     = "mnemonic"
)

var (
	// ErrInvalidKeypair is returned when keypair bytes are malformed.
	ErrInvalidKeypair = errors.New("invalid keypair: must be 64 bytes")

	// ErrEmptyPhrase is returned when a seed phrase has no words.
	ErrEmptyPhrase = errors.New("empty seed phrase")
)

// Keypair is an Ed25519 signing key and its public key.
type Keypair struct {
	private ed25519.PrivateKey
	public  types.Pubkey
}

// Generate creates a new random keypair. A nil reader uses crypto/rand.
func Generate(r io.Reader) (*Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromPrivate(priv), nil
}

// FromSeed builds a keypair from a 32-byte Ed25519 seed.
func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return fromPrivate(ed25519.NewKeyFromSeed(seed)), nil
}

// FromSeedPhrase derives a keypair from a BIP-39 style phrase and optional
// passphrase. The first 32 bytes of the PBKDF2-HMAC-SHA512 seed become the
// Ed25519 seed, matching `solana-keygen recover` without a derivation path.
func FromSeedPhrase(phrase, passphrase string) (*Keypair, error) {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return nil, ErrEmptyPhrase
	}
	normalized := strings.Join(words, " ")
	seed := pbkdf2.Key([]byte(normalized), []byte(saltPrefix+passphrase), seedIterations, seedLen, sha512.New)
	return FromSeed(seed[:ed25519.SeedSize])
}

// FromBytes builds a keypair from the 64-byte private key encoding.
func FromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeypair
	}
	kp, err := FromSeed(b[:ed25519.SeedSize])
	if err != nil {
		return nil, err
	}
	if string(kp.public[:]) != string(b[ed25519.SeedSize:]) {
		return nil, errors.New("invalid keypair: public key does not match seed")
	}
	return kp, nil
}

func fromPrivate(priv ed25519.PrivateKey) *Keypair {
	var pub types.Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &Keypair{private: priv, public: pub}
}

// PublicKey returns the keypair's public key.
func (k *Keypair) PublicKey() types.Pubkey {
	return k.public
}

// Sign signs a message.
func (k *Keypair) Sign(message []byte) types.Signature {
	var sig types.Signature
	copy(sig[:], ed25519.Sign(k.private, message))
	return sig
}

// Bytes returns the 64-byte private key encoding.
func (k *Keypair) Bytes() []byte {
	out := make([]byte, len(k.private))
	copy(out, k.private)
	return out
}

// Load reads a keypair file.
func Load(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair %s: %w", path, err)
	}
	b := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair %s: byte %d out of range", path, i)
		}
		b[i] = byte(v)
	}
	return FromBytes(b)
}

// Save writes the keypair file with owner-only permissions.
func (k *Keypair) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create keypair directory: %w", err)
	}
	ints := make([]int, len(k.private))
	for i, b := range k.private {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0600)
}
