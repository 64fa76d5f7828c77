package main

import (
	"os"

	"github.com/better-wallet/controller/cmd/controller/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
