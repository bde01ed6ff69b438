package ledger

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/oasisprotocol/curve25519-voi/curve"
)

const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

var (
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")
	ErrInvalidSeeds          = errors.New("provided seeds do not result in a valid address")
)

var pdaMarker = []byte("ProgramDerivedAddress")

// CreateProgramAddress derives the address owned by programID for the given
// seeds. The last seed is usually the bump. Addresses that land on the
// ed25519 curve are rejected so that no private key can sign for them.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, ErrMaxSeedLengthExceeded
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return Pubkey{}, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)

	var out Pubkey
	copy(out[:], h.Sum(nil))
	if IsOnCurve(out) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return out, nil
}

// FindProgramAddress returns the canonical derived address and its bump:
// the first bump, counting down from 255, whose address is off-curve.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump > 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump)
		}
		if errors.Is(err, ErrMaxSeedLengthExceeded) {
			panic(fmt.Sprintf("find program address: %v", err))
		}
	}
	panic("unable to find a viable program address bump seed")
}

// IsOnCurve reports whether key decompresses to an ed25519 point.
func IsOnCurve(key Pubkey) bool {
	var compressed curve.CompressedEdwardsY
	if _, err := compressed.SetBytes(key[:]); err != nil {
		return false
	}
	var point curve.EdwardsPoint
	_, err := point.SetCompressedY(&compressed)
	return err == nil
}

// SignerSeeds lets a program sign for one of its derived addresses during a
// single call into another program.
type SignerSeeds struct {
	ProgramID Pubkey
	Seeds     [][]byte
}

func (s SignerSeeds) Address() (Pubkey, error) {
	return CreateProgramAddress(s.Seeds, s.ProgramID)
}
