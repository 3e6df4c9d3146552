package main

import (
	"os"

	"github.com/tradeforge/papertrade/cmd/papertrade/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
