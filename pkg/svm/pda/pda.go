// Package pda implements Program Derived Address operations.
//
// A program derived address is sha256(seeds... || program_id ||
// "ProgramDerivedAddress") rejected if it lands on the ed25519 curve, so no
// private key can exist for it. Only the program whose id went into the hash
// can sign for the address, by presenting the same seeds to the runtime.
package pda

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/fortiblox/X1-Clicker/internal/types"
)

// PDA constants.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// PDA marker used in address derivation.
var pdaMarker = []byte("ProgramDerivedAddress")

// PDA errors.
var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrMaxSeedsExceeded      = errors.New("max seeds exceeded")
	ErrInvalidSeeds          = errors.New("invalid seeds: derived address is on curve")
	ErrNoViableBump          = errors.New("unable to find a viable program address bump seed")
)

// Curve parameters, computed once.
var (
	// Field prime p = 2^255 - 19
	fieldP = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

	// d = -121665/121666 (mod p)
	curveD = func() *big.Int {
		d := new(big.Int).Mul(big.NewInt(-121665), new(big.Int).ModInverse(big.NewInt(121666), fieldP))
		return d.Mod(d, fieldP)
	}()

	// (p-1)/2 for Euler's criterion
	legendreExp = new(big.Int).Rsh(new(big.Int).Sub(fieldP, big.NewInt(1)), 1)

	bigOne = big.NewInt(1)
)

// CreateProgramAddress derives a program address from seeds and a program ID.
// Returns ErrInvalidSeeds if the derived address is on the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.Pubkey{}, ErrMaxSeedsExceeded
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.Pubkey{}, ErrMaxSeedLengthExceeded
		}
	}

	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var addr types.Pubkey
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr[:]) {
		return types.Pubkey{}, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress finds a valid PDA by iterating bump seeds from 255 to 0.
// It returns the address, the bump that produced it and the number of
// attempts made, so callers can meter the search.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, int, error) {
	if len(seeds) > MaxSeeds-1 { // Need room for bump seed
		return types.Pubkey{}, 0, 0, ErrMaxSeedsExceeded
	}

	seedsWithBump := make([][]byte, len(seeds)+1)
	copy(seedsWithBump, seeds)

	attempts := 0
	for bump := 255; bump >= 0; bump-- {
		attempts++
		seedsWithBump[len(seeds)] = []byte{uint8(bump)}

		addr, err := CreateProgramAddress(seedsWithBump, programID)
		if err == nil {
			return addr, uint8(bump), attempts, nil
		}
		if !errors.Is(err, ErrInvalidSeeds) {
			return types.Pubkey{}, 0, attempts, err
		}
	}
	return types.Pubkey{}, 0, attempts, ErrNoViableBump
}

// IsOnCurve reports whether the 32 bytes decode to a point on the ed25519
// curve -x^2 + y^2 = 1 + d*x^2*y^2.
//
// A compressed point stores y and the sign of x; the point exists iff
// x^2 = (y^2 - 1) / (d*y^2 + 1) is a quadratic residue mod p.
func IsOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}

	// Little-endian y with the sign bit cleared.
	yBytes := make([]byte, 32)
	for i := 0; i < 32; i++ {
		yBytes[31-i] = point[i]
	}
	yBytes[0] &= 0x7F
	// Non-canonical y >= p is reduced, as curve25519-dalek's decompress does.
	y := new(big.Int).SetBytes(yBytes)
	y.Mod(y, fieldP)

	y2 := new(big.Int).Mul(y, y)
	y2.Mod(y2, fieldP)

	num := new(big.Int).Sub(y2, bigOne)
	num.Mod(num, fieldP)

	den := new(big.Int).Mul(curveD, y2)
	den.Add(den, bigOne)
	den.Mod(den, fieldP)

	denInv := new(big.Int).ModInverse(den, fieldP)
	if denInv == nil {
		return false
	}
	x2 := new(big.Int).Mul(num, denInv)
	x2.Mod(x2, fieldP)

	if x2.Sign() == 0 {
		return true
	}
	return new(big.Int).Exp(x2, legendreExp, fieldP).Cmp(bigOne) == 0
}
