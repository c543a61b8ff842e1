package main

import (
	"os"

	"github.com/threatlens/threatlens/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
