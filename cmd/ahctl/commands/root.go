// Package commands implements ahctl, the offline companion of the
// settlement server: address derivation, split previews and genesis checks.
package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/leafsii/auction-house/internal/ledger"
)

var RootCmd = &cobra.Command{
	Use:          "ahctl",
	Short:        "Auction house settlement tooling",
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(DeriveCmd, QuoteCmd, GenesisCmd)
}

func parseKey(name, value string) (ledger.Pubkey, error) {
	if value == "" {
		return ledger.Pubkey{}, fmt.Errorf("--%s is required", name)
	}
	key, err := ledger.PubkeyFromBase58(value)
	if err != nil {
		return ledger.Pubkey{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return key, nil
}

// keys parses the named flags of cmd in order.
func keys(cmd *cobra.Command, names ...string) ([]ledger.Pubkey, error) {
	out := make([]ledger.Pubkey, len(names))
	for i, name := range names {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return nil, err
		}
		if out[i], err = parseKey(name, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
