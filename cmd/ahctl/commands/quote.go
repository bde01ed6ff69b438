package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	ah "github.com/leafsii/auction-house/internal/auctionhouse"
	"github.com/leafsii/auction-house/internal/calc"
	"github.com/leafsii/auction-house/internal/ledger"
	"github.com/leafsii/auction-house/internal/repository"
	"github.com/leafsii/auction-house/internal/settlement"
)

var (
	quotePrice      uint64
	quoteRoyaltyBps uint16
	quoteFeeBps     uint16
	quoteShares     []string
	quoteCreators   []string
	quoteDecimals   uint8
	quoteGenesis    string
	quoteHouse      string
	quoteMint       string
)

// QuoteCmd previews how a sale price is split. With --genesis the
// marketplace and metadata are read from a genesis file, otherwise the
// rates come from flags.
var QuoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Preview the royalty, fee and seller split of a sale price",
	Args:  cobra.NoArgs,
	RunE:  quote,
}

func init() {
	f := QuoteCmd.Flags()
	f.Uint64Var(&quotePrice, "price", 0, "gross sale price in base units")
	f.Uint16Var(&quoteRoyaltyBps, "royalty-bps", 0, "seller fee basis points of the asset")
	f.Uint16Var(&quoteFeeBps, "fee-bps", 0, "marketplace fee basis points")
	f.StringSliceVar(&quoteShares, "shares", nil, "creator shares in basis points, summing to 10000")
	f.StringSliceVar(&quoteCreators, "creators", nil, "creator labels, in share order")
	f.Uint8Var(&quoteDecimals, "decimals", 9, "decimals of the treasury mint")
	f.StringVar(&quoteGenesis, "genesis", "", "genesis file to quote against")
	f.StringVar(&quoteHouse, "marketplace", "", "marketplace address (with --genesis)")
	f.StringVar(&quoteMint, "mint", "", "asset mint (with --genesis)")
}

func quote(cmd *cobra.Command, args []string) error {
	if quotePrice == 0 {
		return errors.New("--price must be positive")
	}
	if quoteGenesis != "" {
		q, err := quoteFromGenesis(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), q)
	}

	if err := calc.ValidateBasisPoints(quoteRoyaltyBps, "royalty"); err != nil {
		return err
	}
	if err := calc.ValidateBasisPoints(quoteFeeBps, "marketplace fee"); err != nil {
		return err
	}
	shares := make([]uint16, len(quoteShares))
	var total uint64
	for i, v := range quoteShares {
		s, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid share %q: %w", v, err)
		}
		if s > ah.MaxBasisPoints {
			return fmt.Errorf("share %d exceeds %d", s, ah.MaxBasisPoints)
		}
		shares[i] = uint16(s)
		total += s
	}
	if len(shares) > 0 && total != ah.MaxBasisPoints {
		return fmt.Errorf("creator shares sum to %d, want %d", total, ah.MaxBasisPoints)
	}

	split, err := ah.ComputeSplit(quotePrice, quoteRoyaltyBps, shares, quoteFeeBps)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), calc.PreviewSplit(&split, quoteCreators, quoteRoyaltyBps, quoteFeeBps, quoteDecimals))
}

func quoteFromGenesis(ctx context.Context) (*settlement.Quote, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	house, err := parseKey("marketplace", quoteHouse)
	if err != nil {
		return nil, err
	}
	mint, err := parseKey("mint", quoteMint)
	if err != nil {
		return nil, err
	}
	g, err := ledger.ReadGenesis(quoteGenesis)
	if err != nil {
		return nil, err
	}
	l := ledger.NewMemStore()
	defer l.Close()
	if err := l.Load(ctx, g); err != nil {
		return nil, err
	}
	svc := settlement.NewService(l, repository.NewMemory(), nil, nil, nil, settlement.Options{})
	return svc.Quote(ctx, settlement.QuoteRequest{AuctionHouse: house, TokenMint: mint, Price: quotePrice})
}
