package main

import (
	"os"

	"github.com/MEKXH/warden/cmd/warden/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
