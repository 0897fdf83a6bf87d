package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/coffersTech/fwmatrix/internal/engine"
	"golang.org/x/crypto/blake2b"
)

// KeyEnv names the environment variable holding a hex-encoded key.
const KeyEnv = "FWMATRIX_ANON_KEY"

// KeySize is the length of a pseudonymization key in bytes.
const KeySize = 32

// DefaultDigestLen is the number of hex characters kept from a digest.
const DefaultDigestLen = 12

// LoadKey returns the pseudonymization key from the environment, the key
// file, or generates a new one and saves it to keyPath.
// Returns (key, true, nil) if a new key was generated.
func LoadKey(keyPath string) ([]byte, bool, error) {
	// 1. Check Environmental Variable
	if envKey := os.Getenv(KeyEnv); envKey != "" {
		key, err := decodeKey(envKey)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", KeyEnv, err)
		}
		return key, false, nil
	}

	if keyPath == "" {
		return nil, false, errors.New("no key file configured")
	}

	// 2. Check Key File
	data, err := os.ReadFile(keyPath)
	if err == nil {
		key, err := decodeKey(string(data))
		if err != nil {
			return nil, false, fmt.Errorf("key file %s: %w", keyPath, err)
		}
		return key, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("failed to read key file: %w", err)
	}

	// 3. Generate New Key
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, false, fmt.Errorf("failed to save key to %s: %w", keyPath, err)
	}
	return key, true, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid hex key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Pseudonymizer replaces addresses with a keyed BLAKE2b-256 digest prefix.
// The same key always maps an address to the same pseudonym.
type Pseudonymizer struct {
	mac    hash.Hash
	length int
	cache  map[string]string
}

// NewPseudonymizer creates a Pseudonymizer keeping length hex characters
// of each digest. length <= 0 selects DefaultDigestLen.
func NewPseudonymizer(key []byte, length int) (*Pseudonymizer, error) {
	mac, err := blake2b.New256(key)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		length = DefaultDigestLen
	}
	if length > 2*blake2b.Size256 {
		length = 2 * blake2b.Size256
	}
	return &Pseudonymizer{mac: mac, length: length, cache: make(map[string]string)}, nil
}

// Pseudonym returns the pseudonym of value. The missing-field sentinel is
// returned unchanged.
func (p *Pseudonymizer) Pseudonym(value string) string {
	if value == engine.MissingValue {
		return value
	}
	if s, ok := p.cache[value]; ok {
		return s
	}

	p.mac.Reset()
	p.mac.Write([]byte(value))
	s := hex.EncodeToString(p.mac.Sum(nil))[:p.length]
	p.cache[value] = s
	return s
}

// Tuple pseudonymizes the source and destination address of t.
func (p *Pseudonymizer) Tuple(t engine.Tuple) engine.Tuple {
	t.SrcIP = p.Pseudonym(t.SrcIP)
	t.DstIP = p.Pseudonym(t.DstIP)
	return t
}

// Apply returns a copy of m with every address pseudonymized.
func (p *Pseudonymizer) Apply(m *engine.Matrix) *engine.Matrix {
	return m.Remap(p.Tuple)
}
