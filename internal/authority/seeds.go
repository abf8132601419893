package authority

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	MaxSeeds      = 16 // runtime limit on seeds per derived address
	MaxSeedLength = 32 // runtime limit on a single seed in bytes
)

// ErrInvalidSeeds is returned when a seed path breaks the runtime limits
var ErrInvalidSeeds = errors.New("invalid seed path")

// SeedPath is the ordered list of byte strings a derived authority is computed from.
type SeedPath [][]byte

// Seeds builds a SeedPath from strings and raw byte slices.
// Anything else is formatted with %v.
func Seeds(parts ...any) SeedPath {
	path := make(SeedPath, 0, len(parts))
	for _, p := range parts {
		switch v := p.(type) {
		case []byte:
			path = append(path, v)
		case string:
			path = append(path, []byte(v))
		case solana.PublicKey:
			path = append(path, v.Bytes())
		default:
			path = append(path, []byte(fmt.Sprint(v)))
		}
	}
	return path
}

// WithBump returns a copy of the path with the bump seed appended
func (s SeedPath) WithBump(bump uint8) SeedPath {
	out := s.Clone()
	return append(out, []byte{bump})
}

// Clone deep-copies the path so the caller cannot mutate seeds after handing them over.
func (s SeedPath) Clone() SeedPath {
	if s == nil {
		return nil
	}
	out := make(SeedPath, len(s), len(s)+1)
	for i, seed := range s {
		out[i] = append([]byte(nil), seed...)
	}
	return out
}

// Validate checks the runtime limits on seed count and seed length
func (s SeedPath) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidSeeds)
	}
	if len(s) > MaxSeeds {
		return fmt.Errorf("%w: %d seeds, max %d", ErrInvalidSeeds, len(s), MaxSeeds)
	}
	for i, seed := range s {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d is %d bytes, max %d", ErrInvalidSeeds, i, len(seed), MaxSeedLength)
		}
	}
	return nil
}

// Derive computes the address produced by seeds under program.
// The seeds must already contain the bump; an on-curve result is an error.
func Derive(seeds SeedPath, program solana.PublicKey) (solana.PublicKey, error) {
	if err := seeds.Validate(); err != nil {
		return solana.PublicKey{}, err
	}
	addr, err := solana.CreateProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: failed to derive address: %v", ErrInvalidSeeds, err)
	}
	return addr, nil
}

// Find searches for the canonical bump of seeds under program.
// Returns the derived address and the bump to append with WithBump.
func Find(seeds SeedPath, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	// Leave room for the bump seed
	if len(seeds) >= MaxSeeds {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %d seeds leave no room for bump", ErrInvalidSeeds, len(seeds))
	}
	if err := seeds.Validate(); err != nil {
		return solana.PublicKey{}, 0, err
	}
	addr, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: failed to find program address: %v", ErrInvalidSeeds, err)
	}
	return addr, bump, nil
}

// Matches reports whether seeds re-derive to want under program.
func Matches(want solana.PublicKey, seeds SeedPath, program solana.PublicKey) bool {
	got, err := Derive(seeds, program)
	if err != nil {
		return false
	}
	return got.Equals(want)
}

// ParseSeeds decodes textual seeds. A seed is taken as UTF-8 unless it is
// prefixed with "hex:" (hex bytes) or "pk:" (a base58 public key).
func ParseSeeds(in []string) (SeedPath, error) {
	path := make(SeedPath, 0, len(in))
	for i, s := range in {
		var seed []byte
		switch {
		case strings.HasPrefix(s, "hex:"):
			b, err := hex.DecodeString(strings.TrimPrefix(s, "hex:"))
			if err != nil {
				return nil, fmt.Errorf("%w: seed %d: %v", ErrInvalidSeeds, i, err)
			}
			seed = b
		case strings.HasPrefix(s, "pk:"):
			key, err := solana.PublicKeyFromBase58(strings.TrimPrefix(s, "pk:"))
			if err != nil {
				return nil, fmt.Errorf("%w: seed %d: %v", ErrInvalidSeeds, i, err)
			}
			seed = key.Bytes()
		default:
			seed = []byte(s)
		}
		path = append(path, seed)
	}
	return path, nil
}
