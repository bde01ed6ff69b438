package ledger

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

// PubkeyLen is the byte length of an account address.
const PubkeyLen = 32

// Pubkey is an account address. Its text form is base58, which is what
// wallets and front-ends exchange.
type Pubkey [PubkeyLen]byte

func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != PubkeyLen {
		return p, fmt.Errorf("invalid pubkey length %d, want %d", len(b), PubkeyLen)
	}
	copy(p[:], b)
	return p, nil
}

func PubkeyFromBase58(s string) (Pubkey, error) {
	if s == "" {
		return Pubkey{}, fmt.Errorf("empty pubkey")
	}
	raw := base58.Decode(s)
	if len(raw) == 0 {
		return Pubkey{}, fmt.Errorf("invalid base58 pubkey %q", s)
	}
	return PubkeyFromBytes(raw)
}

// MustPubkeyFromBase58 is meant for well-known program ids.
func MustPubkeyFromBase58(s string) Pubkey {
	p, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

func (p Pubkey) Bytes() []byte {
	return p[:]
}

func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

func (p Pubkey) Equals(o Pubkey) bool {
	return bytes.Equal(p[:], o[:])
}

func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Pubkey) UnmarshalText(text []byte) error {
	parsed, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
