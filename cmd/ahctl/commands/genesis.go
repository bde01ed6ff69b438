package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/ledger"
)

var GenesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Inspect genesis files",
}

var GenesisCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a genesis file and summarize its marketplaces",
	Args:  cobra.ExactArgs(1),
	RunE:  checkGenesis,
}

func init() {
	GenesisCmd.AddCommand(GenesisCheckCmd)
}

type marketplaceSummary struct {
	Address              ledger.Pubkey  `json:"address"`
	TreasuryMint         ledger.Pubkey  `json:"treasury_mint"`
	Authority            ledger.Pubkey  `json:"authority"`
	SellerFeeBasisPoints uint16         `json:"seller_fee_basis_points"`
	RequiresSignOff      bool           `json:"requires_sign_off"`
	Auctioneer           *ledger.Pubkey `json:"auctioneer,omitempty"`
}

type genesisSummary struct {
	Accounts     int                  `json:"accounts"`
	Lamports     uint64               `json:"lamports"`
	Marketplaces []marketplaceSummary `json:"marketplaces"`
}

func checkGenesis(cmd *cobra.Command, args []string) error {
	g, err := ledger.ReadGenesis(args[0])
	if err != nil {
		return err
	}
	byKey := make(map[ledger.Pubkey]*ledger.GenesisAccount, len(g.Accounts))
	for i := range g.Accounts {
		byKey[g.Accounts[i].Address] = &g.Accounts[i]
	}

	sum := genesisSummary{Accounts: len(g.Accounts), Marketplaces: []marketplaceSummary{}}
	for _, a := range g.Accounts {
		if sum.Lamports+a.Lamports < sum.Lamports {
			return fmt.Errorf("total lamports overflow at %s", a.Address)
		}
		sum.Lamports += a.Lamports
		if a.Owner != ah.ProgramID || !ah.IsAuctionHouse(a.Data) {
			continue
		}
		m, err := checkMarketplace(a, byKey)
		if err != nil {
			return fmt.Errorf("marketplace %s: %w", a.Address, err)
		}
		sum.Marketplaces = append(sum.Marketplaces, *m)
	}
	return printJSON(cmd.OutOrStdout(), sum)
}

func checkMarketplace(a ledger.GenesisAccount, byKey map[ledger.Pubkey]*ledger.GenesisAccount) (*marketplaceSummary, error) {
	h, err := ah.DecodeAuctionHouse(a.Data)
	if err != nil {
		return nil, err
	}
	if want, _ := ah.AuctionHouseAddress(h.Creator, h.TreasuryMint); want != a.Address {
		return nil, fmt.Errorf("address is not derived from creator %s and treasury mint %s", h.Creator, h.TreasuryMint)
	}
	m := &marketplaceSummary{
		Address:              a.Address,
		TreasuryMint:         h.TreasuryMint,
		Authority:            h.Authority,
		SellerFeeBasisPoints: h.SellerFeeBasisPoints,
		RequiresSignOff:      h.RequiresSignOff,
	}
	if !h.HasAuctioneer {
		return m, nil
	}
	rec, ok := byKey[h.AuctioneerAddress]
	if !ok {
		return nil, fmt.Errorf("auctioneer record %s is missing", h.AuctioneerAddress)
	}
	if rec.Owner != ah.ProgramID {
		return nil, fmt.Errorf("auctioneer record %s is not owned by the auction house program", h.AuctioneerAddress)
	}
	r, err := ah.DecodeAuctioneer(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("auctioneer record: %w", err)
	}
	if r.AuctionHouse != a.Address {
		return nil, fmt.Errorf("auctioneer record belongs to %s", r.AuctionHouse)
	}
	m.Auctioneer = &r.AuctioneerAuthority
	return m, nil
}
