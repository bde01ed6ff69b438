package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/metadata"
	"github.com/leafsii/auction-house/internal/token"
)

// DeriveCmd prints derived program addresses with their bump seeds.
var DeriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive marketplace, escrow, trade state and token addresses",
}

type derivation struct {
	use   string
	short string
	flags []string
	// numeric flags, parsed as uint64
	amounts []string
	derive  func(k []ledger.Pubkey, n []uint64) (ledger.Pubkey, uint8)
}

var derivations = []derivation{
	{
		use:   "marketplace",
		short: "Auction house address of a creator and treasury mint",
		flags: []string{"creator", "treasury-mint"},
		derive: func(k []ledger.Pubkey, _ []uint64) (ledger.Pubkey, uint8) {
			return ah.AuctionHouseAddress(k[0], k[1])
		},
	},
	{
		use:   "escrow",
		short: "Buyer escrow of a marketplace",
		flags: []string{"marketplace", "wallet"},
		derive: func(k []ledger.Pubkey, _ []uint64) (ledger.Pubkey, uint8) {
			return ah.EscrowAddress(k[0], k[1])
		},
	},
	{
		use:     "trade-state",
		short:   "Trade state of an order at a price",
		flags:   []string{"wallet", "marketplace", "token-account", "treasury-mint", "mint"},
		amounts: []string{"price", "size"},
		derive: func(k []ledger.Pubkey, n []uint64) (ledger.Pubkey, uint8) {
			return ah.TradeStateAddress(k[0], k[1], k[2], k[3], k[4], n[0], n[1])
		},
	},
	{
		use:     "public-trade-state",
		short:   "Trade state of a public bid",
		flags:   []string{"wallet", "marketplace", "treasury-mint", "mint"},
		amounts: []string{"price", "size"},
		derive: func(k []ledger.Pubkey, n []uint64) (ledger.Pubkey, uint8) {
			return ah.PublicTradeStateAddress(k[0], k[1], k[2], k[3], n[0], n[1])
		},
	},
	{
		use:     "free-trade-state",
		short:   "Zero-price trade state of a listing",
		flags:   []string{"wallet", "marketplace", "token-account", "treasury-mint", "mint"},
		amounts: []string{"size"},
		derive: func(k []ledger.Pubkey, n []uint64) (ledger.Pubkey, uint8) {
			return ah.FreeTradeStateAddress(k[0], k[1], k[2], k[3], k[4], n[0])
		},
	},
	{
		use:   "auctioneer",
		short: "Scope record of an auctioneer on a marketplace",
		flags: []string{"marketplace", "authority"},
		derive: func(k []ledger.Pubkey, _ []uint64) (ledger.Pubkey, uint8) {
			return ah.AuctioneerAddress(k[0], k[1])
		},
	},
	{
		use:   "ata",
		short: "Associated token account of a wallet for a mint",
		flags: []string{"wallet", "mint"},
		derive: func(k []ledger.Pubkey, _ []uint64) (ledger.Pubkey, uint8) {
			return token.AssociatedAddress(k[0], k[1])
		},
	},
	{
		use:   "metadata",
		short: "Metadata account of a mint",
		flags: []string{"mint"},
		derive: func(k []ledger.Pubkey, _ []uint64) (ledger.Pubkey, uint8) {
			return metadata.Address(k[0])
		},
	},
}

func (d derivation) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   d.use,
		Short: d.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := keys(cmd, d.flags...)
			if err != nil {
				return err
			}
			n := make([]uint64, len(d.amounts))
			for i, name := range d.amounts {
				if n[i], err = cmd.Flags().GetUint64(name); err != nil {
					return err
				}
			}
			addr, bump := d.derive(k, n)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", addr, bump)
			return nil
		},
	}
	for _, name := range d.flags {
		cmd.Flags().String(name, "", name+" address (base58)")
	}
	for _, name := range d.amounts {
		def := uint64(0)
		if name == "size" {
			def = 1
		}
		cmd.Flags().Uint64(name, def, name+" in base units")
	}
	return cmd
}

func init() {
	for _, d := range derivations {
		DeriveCmd.AddCommand(d.command())
	}
}
