package main

import (
	"os"

	"github.com/harun/shinimi/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
