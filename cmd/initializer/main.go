package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/leafsii/auction-house/cmd/initializer/pkg"
	"github.com/leafsii/auction-house/internal/initializer"
	"github.com/leafsii/auction-house/internal/ledger"
)

func main() {
	genesisPath := flag.String("genesis", "genesis.json", "genesis file to write")
	outPath := flag.String("out", "init.json", "file describing the demo market")
	price := flag.Uint64("price", initializer.DefaultParams().Price, "sale price of the demo listings, in lamports")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	params := initializer.DefaultParams()
	params.Price = *price

	store := ledger.NewMemStore()
	defer store.Close()

	result, err := initializer.Initialize(ctx, store, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize demo market: %v\n", err)
		os.Exit(1)
	}

	genesis, err := store.Snapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to snapshot ledger: %v\n", err)
		os.Exit(1)
	}
	if err := genesis.Write(*genesisPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write genesis: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("marketplace: ", result.Marketplace)
	fmt.Println("auction marketplace: ", result.AuctionMarket)
	fmt.Println("buyer: ", result.Buyer)
	fmt.Println("seller: ", result.Seller)
	fmt.Println("direct sale mint: ", result.Direct.TokenMint)
	fmt.Println("delegated sale mint: ", result.Delegated.TokenMint)

	err = pkg.WriteConfig(*outPath, pkg.InitConfig{GenesisPath: *genesisPath, Params: params, Result: result})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Genesis written to %s (%d accounts), configuration to %s\n", *genesisPath, len(genesis.Accounts), *outPath)
}
