package main

import (
	"os"

	"github.com/adflow/adflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
