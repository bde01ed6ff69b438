package auctionhouse

import (
	"encoding/binary"

	"github.com/leafsii/auction-house/internal/ledger"
)

func le64(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func withBump(seeds [][]byte, bump uint8) [][]byte {
	out := make([][]byte, len(seeds), len(seeds)+1)
	copy(out, seeds)
	return append(out, []byte{bump})
}

// deriveWithBump recomputes the address of seeds at an explicit bump.
func deriveWithBump(seeds [][]byte, bump uint8) (ledger.Pubkey, error) {
	return ledger.CreateProgramAddress(withBump(seeds, bump), ProgramID)
}

func AuctionHouseSeeds(creator, treasuryMint ledger.Pubkey) [][]byte {
	return [][]byte{[]byte(Prefix), creator[:], treasuryMint[:]}
}

func AuctionHouseAddress(creator, treasuryMint ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress(AuctionHouseSeeds(creator, treasuryMint), ProgramID)
}

func EscrowSeeds(auctionHouse, wallet ledger.Pubkey) [][]byte {
	return [][]byte{[]byte(Prefix), auctionHouse[:], wallet[:]}
}

// EscrowAddress holds a buyer's committed payment for one auction house.
func EscrowAddress(auctionHouse, wallet ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress(EscrowSeeds(auctionHouse, wallet), ProgramID)
}

func FeeAccountAddress(auctionHouse ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress([][]byte{[]byte(Prefix), auctionHouse[:], []byte(FeePayer)}, ProgramID)
}

func TreasuryAddress(auctionHouse ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress([][]byte{[]byte(Prefix), auctionHouse[:], []byte(Treasury)}, ProgramID)
}

// TradeStateSeeds are the seeds of a trade state bound to one token account.
func TradeStateSeeds(wallet, auctionHouse, tokenAccount, treasuryMint, mint ledger.Pubkey, price, size uint64) [][]byte {
	return [][]byte{
		[]byte(Prefix), wallet[:], auctionHouse[:], tokenAccount[:],
		treasuryMint[:], mint[:], le64(price), le64(size),
	}
}

// PublicTradeStateSeeds are the seeds of a public bid, which is not bound to
// a token account.
func PublicTradeStateSeeds(wallet, auctionHouse, treasuryMint, mint ledger.Pubkey, price, size uint64) [][]byte {
	return [][]byte{
		[]byte(Prefix), wallet[:], auctionHouse[:],
		treasuryMint[:], mint[:], le64(price), le64(size),
	}
}

func TradeStateAddress(wallet, auctionHouse, tokenAccount, treasuryMint, mint ledger.Pubkey, price, size uint64) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress(TradeStateSeeds(wallet, auctionHouse, tokenAccount, treasuryMint, mint, price, size), ProgramID)
}

func PublicTradeStateAddress(wallet, auctionHouse, treasuryMint, mint ledger.Pubkey, price, size uint64) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress(PublicTradeStateSeeds(wallet, auctionHouse, treasuryMint, mint, price, size), ProgramID)
}

// FreeTradeStateAddress is the seller trade state of a zero-price listing.
func FreeTradeStateAddress(wallet, auctionHouse, tokenAccount, treasuryMint, mint ledger.Pubkey, size uint64) (ledger.Pubkey, uint8) {
	return TradeStateAddress(wallet, auctionHouse, tokenAccount, treasuryMint, mint, 0, size)
}

// AuctionTradeStateAddress is the seller trade state of a listing placed
// through an auctioneer, which carries no fixed price.
func AuctionTradeStateAddress(wallet, auctionHouse, tokenAccount, treasuryMint, mint ledger.Pubkey, size uint64) (ledger.Pubkey, uint8) {
	return TradeStateAddress(wallet, auctionHouse, tokenAccount, treasuryMint, mint, AuctionPrice, size)
}

// ProgramAsSignerAddress is the custodial delegate sellers approve when they
// list.
func ProgramAsSignerAddress() (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress([][]byte{[]byte(Prefix), []byte(Signer)}, ProgramID)
}

func AuctioneerSeeds(auctionHouse, authority ledger.Pubkey) [][]byte {
	return [][]byte{[]byte(Auctioneer), auctionHouse[:], authority[:]}
}

// AuctioneerAddress is the scope record of authority under auctionHouse.
func AuctioneerAddress(auctionHouse, authority ledger.Pubkey) (ledger.Pubkey, uint8) {
	return ledger.FindProgramAddress(AuctioneerSeeds(auctionHouse, authority), ProgramID)
}

// SignerSeedsFor wraps seeds and their bump for signing as ProgramID.
func SignerSeedsFor(seeds [][]byte, bump uint8) ledger.SignerSeeds {
	return ledger.SignerSeeds{ProgramID: ProgramID, Seeds: withBump(seeds, bump)}
}
