package main

import (
	"os"

	"github.com/leafsii/auction-house/cmd/ahctl/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
