package main

import (
	"os"

	"github.com/partforge/partforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
